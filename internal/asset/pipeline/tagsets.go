package pipeline

import "github.com/assetsvc/assetsvc/internal/asset/tag"

// commonAttrs are the tags every stored row may carry besides Secret/Alias.
var commonAttrs = []tag.Tag{
	tag.Accessibility, tag.RequirePasswordSet, tag.AuthType, tag.AuthValidityPeriod,
	tag.SyncType, tag.IsPersistent, tag.WrapType, tag.GroupId, tag.UserId,
	tag.DataLabelCritical1, tag.DataLabelCritical2, tag.DataLabelCritical3, tag.DataLabelCritical4,
	tag.DataLabelNormal1, tag.DataLabelNormal2, tag.DataLabelNormal3, tag.DataLabelNormal4,
	tag.DataLabelNormalLocal1, tag.DataLabelNormalLocal2, tag.DataLabelNormalLocal3, tag.DataLabelNormalLocal4,
}

// addAllowed is every tag Add accepts, per §4.6.
var addAllowed = append([]tag.Tag{tag.Secret, tag.Alias, tag.ConflictResolution}, commonAttrs...)

// addRequired is §4.6's Add required set.
var addRequired = []tag.Tag{tag.Secret, tag.Alias}

// queryAllowed is every tag a Remove/Update/Query condition may narrow by:
// any critical/label/access-control tag, but never Secret (§4.6 Update).
var queryAllowed = append([]tag.Tag{
	tag.Alias, tag.ReturnType, tag.ReturnLimit, tag.ReturnOffset, tag.ReturnOrderedBy,
	tag.AuthChallenge, tag.AuthToken,
}, commonAttrs...)

// updatePatchAllowed is §4.6 Update's patch set: Secret plus normal labels only.
var updatePatchAllowed = append([]tag.Tag{tag.Secret},
	append(append([]tag.Tag{}, tag.NormalLabels...), tag.LocalLabels...)...)

// preQueryAllowed narrows candidate keys for an interactive session.
var preQueryAllowed = queryAllowed

// postQueryAllowed is just the challenge.
var postQueryAllowed = []tag.Tag{tag.AuthChallenge}

var postQueryRequired = []tag.Tag{tag.AuthChallenge}

// applyAddDefaults fills in §4.6 Add's defaults for any tag the caller
// omitted.
func applyAddDefaults(a tag.Asset) tag.Asset {
	out := a.Clone()
	if _, ok := out[tag.Accessibility]; !ok {
		out[tag.Accessibility] = tag.NumberValue(tag.AccessibilityDeviceFirstUnlocked)
	}
	if _, ok := out[tag.AuthType]; !ok {
		out[tag.AuthType] = tag.NumberValue(tag.AuthTypeNone)
	}
	if _, ok := out[tag.SyncType]; !ok {
		out[tag.SyncType] = tag.NumberValue(0) // Never: no bits set
	}
	if _, ok := out[tag.RequirePasswordSet]; !ok {
		out[tag.RequirePasswordSet] = tag.BoolValue(false)
	}
	if _, ok := out[tag.IsPersistent]; !ok {
		out[tag.IsPersistent] = tag.BoolValue(false)
	}
	if _, ok := out[tag.WrapType]; !ok {
		out[tag.WrapType] = tag.NumberValue(tag.WrapTypeNever)
	}
	if _, ok := out[tag.ConflictResolution]; !ok {
		out[tag.ConflictResolution] = tag.NumberValue(tag.ConflictResolutionThrowError)
	}
	return out
}
