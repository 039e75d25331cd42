package pipeline

import (
	"context"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/crypto"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// Add implements spec.md §4.6's Add operation.
func (p *Pipeline) Add(ctx context.Context, caller identity.IPCCaller, attrs tag.Asset) error {
	info, err := p.resolveIdentity(ctx, caller, attrs)
	if err != nil {
		return err
	}

	filled := applyAddDefaults(attrs)
	accessibility := numOr(filled, tag.Accessibility, tag.AccessibilityDeviceFirstUnlocked)
	if err := checkSystemAccountAccessibility(info.UserID, accessibility); err != nil {
		return err
	}

	accounts, perms := p.checkerPair(caller, info)
	if err := tag.CheckValidity(filled, addAllowed, addRequired, accounts, perms); err != nil {
		return err
	}

	s, err := p.Registry.Get(p.storePath(info, accessibility))
	if err != nil {
		return err
	}

	alias := string(filled[tag.Alias].Bytes)
	authType := numOr(filled, tag.AuthType, tag.AuthTypeNone)
	ownerStr := owner(info)

	cond := store.NewCondition().And("owner", ownerStr).And("alias", alias)
	existing, err := s.Query(ctx, nil, cond, store.QueryOptions{Limit: 1})
	if err != nil {
		return err
	}

	resolution := numOr(filled, tag.ConflictResolution, tag.ConflictResolutionThrowError)
	resurrect := len(existing) == 1 && existing[0].SyncStatus == store.SyncDel
	if len(existing) == 1 && !resurrect && resolution == tag.ConflictResolutionThrowError {
		return asseterr.New(asseterr.Duplicated, "owner/alias already exists")
	}

	critical, normal, local := labelsFromAsset(filled)
	now := nowMillis()
	row := store.Row{
		Alias:              alias,
		Owner:              ownerStr,
		OwnerType:          ownerTypeCode(info.OwnerType),
		GroupID:            bytesOr(filled, tag.GroupId),
		SyncType:           numOr(filled, tag.SyncType, 0),
		Accessibility:      accessibility,
		AuthType:           authType,
		RequirePasswordSet: boolOr(filled, tag.RequirePasswordSet, false),
		IsPersistent:       boolOr(filled, tag.IsPersistent, false),
		CreateTime:         now,
		UpdateTime:         now,
		Version:            CurrentVersion,
		LocalStatus:        store.Local,
		SyncStatus:         store.SyncAdd,
		WrapType:           numOr(filled, tag.WrapType, tag.WrapTypeNever),
		Critical:           critical,
		Normal:             normal,
		NormalLocal:        local,
	}

	keyAl := keyAlias(info, authType, accessibility)
	key, err := p.KeyMgr.GetOrCreate(keyAl)
	if err != nil {
		return err
	}
	aad := row.CanonicalAAD()
	ciphertext, err := crypto.Seal(key, filled[tag.Secret].Bytes, aad)
	if err != nil {
		return err
	}
	row.Secret = ciphertext

	txn, err := s.BeginTxn(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 1 {
		if _, err := s.Replace(ctx, txn, cond, row); err != nil {
			_ = txn.Rollback()
			return err
		}
	} else {
		if _, err := s.Insert(ctx, txn, row); err != nil {
			_ = txn.Rollback()
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	p.notify(ctx, plugin.Notification{Type: plugin.OnAppCall, Fields: map[string]string{"op": "Add", "owner": ownerStr, "alias": alias}})
	return nil
}
