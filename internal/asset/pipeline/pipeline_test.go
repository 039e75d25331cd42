package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

type alwaysPermissions struct{}

func (alwaysPermissions) HasCrossUserPermission(identity.IPCCaller) bool { return true }
func (alwaysPermissions) HasPersistencePermission(identity.IPCCaller) bool { return true }

type alwaysAccounts struct{}

func (alwaysAccounts) UserIDExists(uint32) bool { return true }

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	registry, err := store.NewRegistry(t.TempDir())
	require.NoError(t, err)
	secret, err := keymgr.RandomMasterSecret()
	require.NoError(t, err)
	return New(registry, keymgr.NewManager(secret), session.NewTable(0), plugin.Noop{}, alwaysPermissions{}, alwaysAccounts{})
}

func testCaller() identity.IPCCaller {
	return identity.IPCCaller{UserID: 100, Native: &identity.NativeInfo{ProcessName: "test_proc", UID: 1000}}
}

func TestPipelineAddThenQueryRoundTrip(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	err := p.Add(ctx, caller, tag.Asset{
		tag.Secret: tag.BytesValue([]byte("s3cr3t")),
		tag.Alias:  tag.BytesValue([]byte("alias-1")),
	})
	require.NoError(t, err)

	results, err := p.Query(ctx, caller, tag.Asset{
		tag.Alias:      tag.BytesValue([]byte("alias-1")),
		tag.ReturnType: tag.NumberValue(tag.ReturnTypeAll),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []byte("s3cr3t"), results[0][tag.Secret].Bytes)
}

func TestPipelineAddRejectsDuplicateAlias(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	add := func() error {
		return p.Add(ctx, caller, tag.Asset{
			tag.Secret: tag.BytesValue([]byte("s3cr3t")),
			tag.Alias:  tag.BytesValue([]byte("dup")),
		})
	}
	require.NoError(t, add())
	assert.Error(t, add())
}

func TestPipelineQueryAttributesNeverIncludesSecret(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	require.NoError(t, p.Add(ctx, caller, tag.Asset{
		tag.Secret: tag.BytesValue([]byte("s3cr3t")),
		tag.Alias:  tag.BytesValue([]byte("alias-2")),
	}))

	results, err := p.Query(ctx, caller, tag.Asset{tag.Alias: tag.BytesValue([]byte("alias-2"))})
	require.NoError(t, err)
	require.Len(t, results, 1)
	_, hasSecret := results[0][tag.Secret]
	assert.False(t, hasSecret)
}

func TestPipelineRemoveDeletesRow(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	require.NoError(t, p.Add(ctx, caller, tag.Asset{
		tag.Secret: tag.BytesValue([]byte("s3cr3t")),
		tag.Alias:  tag.BytesValue([]byte("alias-3")),
	}))
	require.NoError(t, p.Remove(ctx, caller, tag.Asset{tag.Alias: tag.BytesValue([]byte("alias-3"))}))

	results, err := p.Query(ctx, caller, tag.Asset{tag.Alias: tag.BytesValue([]byte("alias-3"))})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPipelineRemoveRejectsUnnarrowedBatch(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	err := p.Remove(ctx, caller, tag.Asset{})
	assert.Error(t, err)
}

func TestPipelineUpdateRewritesSecretAndNormalLabel(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	require.NoError(t, p.Add(ctx, caller, tag.Asset{
		tag.Secret: tag.BytesValue([]byte("old-secret")),
		tag.Alias:  tag.BytesValue([]byte("alias-4")),
	}))

	err := p.Update(ctx, caller,
		tag.Asset{tag.Alias: tag.BytesValue([]byte("alias-4"))},
		tag.Asset{
			tag.Secret:           tag.BytesValue([]byte("new-secret")),
			tag.DataLabelNormal1: tag.BytesValue([]byte("updated-label")),
		},
	)
	require.NoError(t, err)

	results, err := p.Query(ctx, caller, tag.Asset{
		tag.Alias:      tag.BytesValue([]byte("alias-4")),
		tag.ReturnType: tag.NumberValue(tag.ReturnTypeAll),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []byte("new-secret"), results[0][tag.Secret].Bytes)
	assert.Equal(t, []byte("updated-label"), results[0][tag.DataLabelNormal1].Bytes)
}

func TestPipelineUpdateRejectsSecretInQuery(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	err := p.Update(ctx, caller,
		tag.Asset{tag.Secret: tag.BytesValue([]byte("nope"))},
		tag.Asset{tag.Secret: tag.BytesValue([]byte("new"))},
	)
	assert.Error(t, err)
}

func TestPipelinePreQueryThenQueryInteractiveFlow(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	require.NoError(t, p.Add(ctx, caller, tag.Asset{
		tag.Secret:   tag.BytesValue([]byte("interactive-secret")),
		tag.Alias:    tag.BytesValue([]byte("alias-5")),
		tag.AuthType: tag.NumberValue(tag.AuthTypeAny),
	}))

	preQuery := tag.Asset{tag.Alias: tag.BytesValue([]byte("alias-5"))}
	challenge, token, err := p.PreQuery(ctx, caller, preQuery)
	require.NoError(t, err)
	require.NotEmpty(t, challenge)
	require.Len(t, token, session.TokenSize)

	results, err := p.Query(ctx, caller, tag.Asset{
		tag.Alias:         tag.BytesValue([]byte("alias-5")),
		tag.ReturnType:    tag.NumberValue(tag.ReturnTypeAll),
		tag.AuthChallenge: tag.BytesValue(challenge),
		tag.AuthToken:     tag.BytesValue(token),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []byte("interactive-secret"), results[0][tag.Secret].Bytes)

	require.NoError(t, p.PostQuery(ctx, caller, tag.Asset{tag.AuthChallenge: tag.BytesValue(challenge)}))
}

func TestPipelineQueryRejectsWrongAuthTokenButSessionSurvives(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	require.NoError(t, p.Add(ctx, caller, tag.Asset{
		tag.Secret:   tag.BytesValue([]byte("interactive-secret")),
		tag.Alias:    tag.BytesValue([]byte("alias-7")),
		tag.AuthType: tag.NumberValue(tag.AuthTypeAny),
	}))

	preQuery := tag.Asset{tag.Alias: tag.BytesValue([]byte("alias-7"))}
	challenge, token, err := p.PreQuery(ctx, caller, preQuery)
	require.NoError(t, err)

	wrongToken := bytes.Repeat([]byte("x"), session.TokenSize)
	_, err = p.Query(ctx, caller, tag.Asset{
		tag.Alias:         tag.BytesValue([]byte("alias-7")),
		tag.ReturnType:    tag.NumberValue(tag.ReturnTypeAll),
		tag.AuthChallenge: tag.BytesValue(challenge),
		tag.AuthToken:     tag.BytesValue(wrongToken),
	})
	require.Error(t, err)
	assert.Equal(t, asseterr.AccessDenied, asseterr.KindOf(err))

	// §4.11: a failed auth token must not destroy the session, so the
	// legitimate caller can retry with the correct token.
	results, err := p.Query(ctx, caller, tag.Asset{
		tag.Alias:         tag.BytesValue([]byte("alias-7")),
		tag.ReturnType:    tag.NumberValue(tag.ReturnTypeAll),
		tag.AuthChallenge: tag.BytesValue(challenge),
		tag.AuthToken:     tag.BytesValue(token),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, p.PostQuery(ctx, caller, tag.Asset{tag.AuthChallenge: tag.BytesValue(challenge)}))
}

func TestPipelineQuerySecretWithoutChallengeIsRejected(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := testCaller()

	require.NoError(t, p.Add(ctx, caller, tag.Asset{
		tag.Secret:   tag.BytesValue([]byte("interactive-secret")),
		tag.Alias:    tag.BytesValue([]byte("alias-6")),
		tag.AuthType: tag.NumberValue(tag.AuthTypeAny),
	}))

	_, err := p.Query(ctx, caller, tag.Asset{
		tag.Alias:      tag.BytesValue([]byte("alias-6")),
		tag.ReturnType: tag.NumberValue(tag.ReturnTypeAll),
	})
	assert.Error(t, err)
}

func TestPipelineSystemAccountRejectsNonDefaultAccessibility(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	caller := identity.IPCCaller{UserID: 1, Native: &identity.NativeInfo{ProcessName: "system_daemon", UID: 0}}

	err := p.Add(ctx, caller, tag.Asset{
		tag.Secret:        tag.BytesValue([]byte("s3cr3t")),
		tag.Alias:         tag.BytesValue([]byte("alias-7")),
		tag.Accessibility: tag.NumberValue(tag.AccessibilityDeviceUnlocked),
	})
	assert.Error(t, err)
}
