package pipeline

import (
	"context"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/crypto"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// Update implements spec.md §4.6's Update operation: query narrows the
// target rows and must not include Secret; patch may only touch Secret and
// the normal (non-critical) labels.
func (p *Pipeline) Update(ctx context.Context, caller identity.IPCCaller, query, patch tag.Asset) error {
	if _, ok := query[tag.Secret]; ok {
		return asseterr.New(asseterr.InvalidArgument, "Update's query map must not include Secret")
	}

	info, err := p.resolveIdentity(ctx, caller, query)
	if err != nil {
		return err
	}
	accounts, perms := p.checkerPair(caller, info)
	if err := tag.CheckValidity(query, queryAllowed, nil, accounts, perms); err != nil {
		return err
	}
	if err := tag.CheckValidity(patch, updatePatchAllowed, nil, accounts, perms); err != nil {
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
	cond.RawSuffix = "AND sync_status != 2"
	rows, err := s.Query(ctx, nil, cond, store.QueryOptions{})
	if err != nil {
		return err
	}

	now := nowMillis()
	txn, err := s.BeginTxn(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := p.updateOneRow(ctx, txn, s, info.UserID, row, patch, now); err != nil {
			_ = txn.Rollback()
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	p.notify(ctx, plugin.Notification{Type: plugin.OnAppCall, Fields: map[string]string{"op": "Update", "owner": owner(info)}})
	return nil
}

// updateOneRow applies patch to one row. Because UpdateTime/SyncStatus
// always change on Update, the AAD always changes too (§4.4), so the
// secret is always decrypted and re-sealed under the refreshed AAD even
// when patch does not touch Secret.
func (p *Pipeline) updateOneRow(ctx context.Context, txn *store.Txn, s *store.Store, userID int32, row store.Row, patch tag.Asset, now string) error {
	keyAl := keymgr.Alias{UserID: userID, Owner: row.Owner, AuthType: row.AuthType, Accessibility: row.Accessibility}
	key, err := p.KeyMgr.GetOrCreate(keyAl)
	if err != nil {
		return err
	}

	plaintext, err := crypto.Open(key, row.Secret, row.CanonicalAAD())
	if err != nil {
		return err
	}
	if v, ok := patch[tag.Secret]; ok {
		plaintext = v.Bytes
	}

	normalTags := [4]tag.Tag{tag.DataLabelNormal1, tag.DataLabelNormal2, tag.DataLabelNormal3, tag.DataLabelNormal4}
	for i, t := range normalTags {
		if v, ok := patch[t]; ok {
			row.Normal[i] = v.Bytes
		}
	}
	localTags := [4]tag.Tag{tag.DataLabelNormalLocal1, tag.DataLabelNormalLocal2, tag.DataLabelNormalLocal3, tag.DataLabelNormalLocal4}
	for i, t := range localTags {
		if v, ok := patch[t]; ok {
			row.NormalLocal[i] = v.Bytes
		}
	}

	row.UpdateTime = now
	row.SyncStatus = store.SyncUpdate

	aad := row.CanonicalAAD()
	ciphertext, err := crypto.Seal(key, plaintext, aad)
	if err != nil {
		return err
	}

	sets := map[string]any{
		"secret":        ciphertext,
		"update_time":   row.UpdateTime,
		"sync_status":   int(row.SyncStatus),
		"normal1":       row.Normal[0],
		"normal2":       row.Normal[1],
		"normal3":       row.Normal[2],
		"normal4":       row.Normal[3],
		"normal_local1": row.NormalLocal[0],
		"normal_local2": row.NormalLocal[1],
		"normal_local3": row.NormalLocal[2],
		"normal_local4": row.NormalLocal[3],
	}
	idCond := store.NewCondition().And("id", row.ID)
	_, err = s.Update(ctx, txn, idCond, sets)
	return err
}
