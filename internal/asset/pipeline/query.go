package pipeline

import (
	"context"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/crypto"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// PreQuery implements spec.md §4.6: selects the candidate AuthType=Any
// rows for query, opens a C5 session over them, and returns its challenge
// together with the token that Query must later present back (§4.4: this
// stand-in has no OS userIAM to separately issue that token, so PreQuery's
// response is the only channel through which a legitimate caller learns
// it — see DESIGN.md).
func (p *Pipeline) PreQuery(ctx context.Context, caller identity.IPCCaller, query tag.Asset) (challenge, token []byte, err error) {
	info, err := p.resolveIdentity(ctx, caller, query)
	if err != nil {
		return nil, nil, err
	}
	accounts, perms := p.checkerPair(caller, info)
	if err := tag.CheckValidity(query, preQueryAllowed, nil, accounts, perms); err != nil {
		return nil, nil, err
	}

	accessibility := numOr(query, tag.Accessibility, tag.AccessibilityDeviceFirstUnlocked)
	s, err := p.Registry.Get(p.storePath(info, accessibility))
	if err != nil {
		return nil, nil, err
	}

	cond := conditionFromQuery(query, owner(info))
	cond.RawSuffix = "AND sync_status != 2 AND auth_type != 0"
	rows, err := s.Query(ctx, nil, cond, store.QueryOptions{})
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, asseterr.New(asseterr.NotFound, "no AuthType=Any assets match this query")
	}

	fp := queryFingerprint(query, owner(info))
	sessionCaller := session.Caller{UserID: info.UserID, Owner: owner(info)}
	needDeviceUnlocked := accessibility == tag.AccessibilityDeviceUnlocked
	return p.Sessions.Create(sessionCaller, fp, needDeviceUnlocked)
}

// Query implements spec.md §4.6's two Query modes.
func (p *Pipeline) Query(ctx context.Context, caller identity.IPCCaller, query tag.Asset) ([]tag.Asset, error) {
	info, err := p.resolveIdentity(ctx, caller, query)
	if err != nil {
		return nil, err
	}
	accounts, perms := p.checkerPair(caller, info)
	if err := tag.CheckValidity(query, queryAllowed, nil, accounts, perms); err != nil {
		return nil, err
	}

	accessibility := numOr(query, tag.Accessibility, tag.AccessibilityDeviceFirstUnlocked)
	s, err := p.Registry.Get(p.storePath(info, accessibility))
	if err != nil {
		return nil, err
	}

	returnType := numOr(query, tag.ReturnType, tag.ReturnTypeAttributes)
	_, hasAlias := query[tag.Alias]

	if returnType == tag.ReturnTypeAll {
		if !hasAlias {
			return nil, asseterr.New(asseterr.Unsupported, "ReturnType=All requires Alias")
		}
		return p.querySecret(ctx, caller, info, query, s)
	}

	return p.queryAttributes(ctx, query, info, s)
}

// querySecret is the "Alias present, ReturnType=All" path: exactly one row
// must match, and it is returned with its decrypted Secret.
func (p *Pipeline) querySecret(ctx context.Context, caller identity.IPCCaller, info identity.CallingInfo, query tag.Asset, s *store.Store) ([]tag.Asset, error) {
	ownerStr := owner(info)
	cond := conditionFromQuery(query, ownerStr)
	cond.RawSuffix = "AND sync_status != 2"
	rows, err := s.Query(ctx, nil, cond, store.QueryOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, asseterr.New(asseterr.NotFound, "no matching asset")
	}
	row := rows[0]

	keyAl := keymgr.Alias{UserID: info.UserID, Owner: row.Owner, AuthType: row.AuthType, Accessibility: row.Accessibility}
	key, err := p.KeyMgr.GetOrCreate(keyAl)
	if err != nil {
		return nil, err
	}

	var plaintext []byte
	if row.AuthType == tag.AuthTypeAny {
		challenge := bytesOr(query, tag.AuthChallenge)
		token := bytesOr(query, tag.AuthToken)
		if challenge == nil || token == nil {
			return nil, asseterr.New(asseterr.InvalidArgument, "AuthChallenge and AuthToken are required for this asset")
		}
		fp := queryFingerprint(query, ownerStr)
		sessionCaller := session.Caller{UserID: info.UserID, Owner: ownerStr}
		plaintext, err = crypto.ExecCrypt(p.Sessions, sessionCaller, fp, challenge, token, key, row.Secret, row.CanonicalAAD())
		if err != nil {
			return nil, err
		}
	} else {
		plaintext, err = crypto.Open(key, row.Secret, row.CanonicalAAD())
		if err != nil {
			return nil, err
		}
	}

	if row.Version < CurrentVersion {
		if err := p.upgradeRow(ctx, s, row, key, plaintext); err != nil {
			return nil, err
		}
	}

	result := rowToAttrs(row)
	result[tag.Secret] = tag.BytesValue(plaintext)
	return []tag.Asset{result}, nil
}

// queryAttributes is the attribute-only path: pagination and ordering, no
// Secret ever returned.
func (p *Pipeline) queryAttributes(ctx context.Context, query tag.Asset, info identity.CallingInfo, s *store.Store) ([]tag.Asset, error) {
	cond := conditionFromQuery(query, owner(info))
	cond.RawSuffix = "AND sync_status != 2"

	opts := store.QueryOptions{
		Offset: numOr(query, tag.ReturnOffset, 0),
		Limit:  numOr(query, tag.ReturnLimit, tag.ReturnLimitMax),
	}
	if v, ok := query[tag.ReturnOrderedBy]; ok {
		if col, ok := labelColumn(tag.Tag(v.Num)); ok {
			opts.OrderBy = []string{col}
			opts.Descending = true // §8.2 scenario 6: descending is the documented default
		}
	}

	rows, err := s.Query(ctx, nil, cond, opts)
	if err != nil {
		return nil, err
	}
	out := make([]tag.Asset, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToAttrs(row))
	}
	return out, nil
}

// upgradeRow re-encrypts row under the current schema version and writes
// it back under the same id, per §4.6's version auto-upgrade rule.
func (p *Pipeline) upgradeRow(ctx context.Context, s *store.Store, row store.Row, key, plaintext []byte) error {
	row.Version = CurrentVersion
	aad := row.CanonicalAAD()
	ciphertext, err := crypto.Seal(key, plaintext, aad)
	if err != nil {
		return err
	}
	sets := map[string]any{"secret": ciphertext, "version": CurrentVersion}
	cond := store.NewCondition().And("id", row.ID)
	_, err = s.Update(ctx, nil, cond, sets)
	return err
}

// PostQuery implements spec.md §4.6: removes the session for challenge.
// Idempotent: removing an already-removed or unknown challenge is not an
// error.
func (p *Pipeline) PostQuery(ctx context.Context, caller identity.IPCCaller, req tag.Asset) error {
	if err := tag.CheckValidity(req, postQueryAllowed, postQueryRequired, nil, nil); err != nil {
		return err
	}
	p.Sessions.Remove(req[tag.AuthChallenge].Bytes)
	return nil
}

// QuerySyncResult delegates straight to the plugin, per §6.1/§4.11 ("the
// plugin is the sole implementer").
func (p *Pipeline) QuerySyncResult(ctx context.Context, caller identity.IPCCaller) (plugin.SyncResult, error) {
	info, err := identity.Resolve(ctx, caller, nil, permAdapter{perms: p.Permissions, caller: caller})
	if err != nil {
		return plugin.SyncResult{}, err
	}
	return p.Notifier.QuerySyncResult(ctx, info.UserID, owner(info))
}
