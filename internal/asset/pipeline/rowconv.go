package pipeline

import (
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// rowToAttrs reconstructs an attribute-only Asset (no Secret) from a
// stored Row, used by the attribute-only Query path (§4.6 Query).
func rowToAttrs(r store.Row) tag.Asset {
	a := tag.Asset{
		tag.Alias:              tag.BytesValue([]byte(r.Alias)),
		tag.Accessibility:      tag.NumberValue(r.Accessibility),
		tag.AuthType:           tag.NumberValue(r.AuthType),
		tag.RequirePasswordSet: tag.BoolValue(r.RequirePasswordSet),
		tag.SyncType:           tag.NumberValue(r.SyncType),
		tag.IsPersistent:       tag.BoolValue(r.IsPersistent),
		tag.WrapType:           tag.NumberValue(r.WrapType),
	}
	if len(r.GroupID) > 0 {
		a[tag.GroupId] = tag.BytesValue(r.GroupID)
	}
	for i, t := range tag.CriticalLabels {
		if r.Critical[i] != nil {
			a[t] = tag.BytesValue(r.Critical[i])
		}
	}
	for i, t := range tag.NormalLabels {
		if r.Normal[i] != nil {
			a[t] = tag.BytesValue(r.Normal[i])
		}
	}
	for i, t := range tag.LocalLabels {
		if r.NormalLocal[i] != nil {
			a[t] = tag.BytesValue(r.NormalLocal[i])
		}
	}
	return a
}

// labelsFromAsset extracts the twelve label slots from asset into the
// store.Row's fixed arrays.
func labelsFromAsset(a tag.Asset) (critical, normal, local [4][]byte) {
	for i, t := range tag.CriticalLabels {
		if v, ok := a[t]; ok {
			critical[i] = v.Bytes
		}
	}
	for i, t := range tag.NormalLabels {
		if v, ok := a[t]; ok {
			normal[i] = v.Bytes
		}
	}
	for i, t := range tag.LocalLabels {
		if v, ok := a[t]; ok {
			local[i] = v.Bytes
		}
	}
	return
}

func numOr(a tag.Asset, t tag.Tag, def uint32) uint32 {
	if v, ok := a[t]; ok {
		return v.Num
	}
	return def
}

func boolOr(a tag.Asset, t tag.Tag, def bool) bool {
	if v, ok := a[t]; ok {
		return v.Bool
	}
	return def
}

func bytesOr(a tag.Asset, t tag.Tag) []byte {
	if v, ok := a[t]; ok {
		return v.Bytes
	}
	return nil
}
