package pipeline

import (
	"context"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// narrowingTags is the set of tags that count as "an owned field" for
// §4.6 Remove's batch-delete narrowing requirement — adopted from
// original_source's argument_check pattern (see DESIGN.md "Batch delete
// narrowing").
var narrowingTags = append([]tag.Tag{tag.Alias, tag.GroupId}, append(
	append([]tag.Tag{}, tag.CriticalLabels...),
	append(tag.NormalLabels, tag.LocalLabels...)...)...)

// RequireNarrowingTag enforces that a batch Remove/Update condition names
// at least one owned field beyond the implicit owner scoping, per §4.6's
// Remove note and the supplemented batch-delete-narrowing rule.
func RequireNarrowingTag(query tag.Asset) error {
	for _, t := range narrowingTags {
		if _, ok := query[t]; ok {
			return nil
		}
	}
	return asseterr.New(asseterr.InvalidArgument, "batch delete/update must narrow by at least one owned field")
}

// Remove implements spec.md §4.6's Remove operation.
func (p *Pipeline) Remove(ctx context.Context, caller identity.IPCCaller, query tag.Asset) error {
	info, err := p.resolveIdentity(ctx, caller, query)
	if err != nil {
		return err
	}
	accounts, perms := p.checkerPair(caller, info)
	if err := tag.CheckValidity(query, queryAllowed, nil, accounts, perms); err != nil {
		return err
	}
	if _, hasAlias := query[tag.Alias]; !hasAlias {
		if err := RequireNarrowingTag(query); err != nil {
			return err
		}
	}

	accessibility := numOr(query, tag.Accessibility, tag.AccessibilityDeviceFirstUnlocked)
	s, err := p.Registry.Get(p.storePath(info, accessibility))
	if err != nil {
		return err
	}

	cond := conditionFromQuery(query, owner(info))
	// Never delete tombstones via Remove; they are already invisible.
	cond.RawSuffix = "AND sync_status != 2"

	txn, err := s.BeginTxn(ctx)
	if err != nil {
		return err
	}
	if _, err := s.Delete(ctx, txn, cond); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	p.notify(ctx, plugin.Notification{Type: plugin.OnAppCall, Fields: map[string]string{"op": "Remove", "owner": owner(info)}})
	return nil
}

// conditionFromQuery builds an equality Condition scoping ownerStr plus
// every narrowing tag present in query that maps onto a stored column.
func conditionFromQuery(query tag.Asset, ownerStr string) store.Condition {
	cond := store.NewCondition().And("owner", ownerStr)
	if v, ok := query[tag.Alias]; ok {
		cond = cond.And("alias", string(v.Bytes))
	}
	if v, ok := query[tag.GroupId]; ok {
		cond = cond.And("group_id", v.Bytes)
	}
	if v, ok := query[tag.Accessibility]; ok {
		cond = cond.And("accessibility", v.Num)
	}
	if v, ok := query[tag.AuthType]; ok {
		cond = cond.And("auth_type", v.Num)
	}
	labelCols := []struct {
		t   tag.Tag
		col string
	}{
		{tag.DataLabelCritical1, "critical1"}, {tag.DataLabelCritical2, "critical2"},
		{tag.DataLabelCritical3, "critical3"}, {tag.DataLabelCritical4, "critical4"},
		{tag.DataLabelNormal1, "normal1"}, {tag.DataLabelNormal2, "normal2"},
		{tag.DataLabelNormal3, "normal3"}, {tag.DataLabelNormal4, "normal4"},
		{tag.DataLabelNormalLocal1, "normal_local1"}, {tag.DataLabelNormalLocal2, "normal_local2"},
		{tag.DataLabelNormalLocal3, "normal_local3"}, {tag.DataLabelNormalLocal4, "normal_local4"},
	}
	for _, lc := range labelCols {
		if v, ok := query[lc.t]; ok {
			cond = cond.And(lc.col, v.Bytes)
		}
	}
	return cond
}
