package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetsvc/assetsvc/internal/asset/events"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
)

type fakeSubscriber struct {
	err error
}

func (f fakeSubscriber) Subscribe(context.Context, *events.Reactor) error { return f.err }

func newTestShell(t *testing.T, primary, fallback EventSubscriber) (*Shell, *session.Table, *events.Reactor) {
	t.Helper()
	dir := t.TempDir()
	registry, err := store.NewRegistry(dir)
	require.NoError(t, err)

	secret, err := keymgr.RandomMasterSecret()
	require.NoError(t, err)
	keys := keymgr.NewManager(secret)
	sessions := session.NewTable(time.Minute)

	auditFile, err := os.CreateTemp(dir, "audit-*.jsonl")
	require.NoError(t, err)
	t.Cleanup(func() { auditFile.Close() })

	reactor := events.NewReactor(registry, keys, sessions, plugin.Noop{}, nil, auditFile, events.Config{})
	sh := New(registry, sessions, reactor, nil, primary, fallback, nil, nil)
	return sh, sessions, reactor
}

func TestShellStartFallsBackToSecondaryPath(t *testing.T) {
	sh, _, _ := newTestShell(t, fakeSubscriber{err: assert.AnError}, fakeSubscriber{err: nil})

	err := sh.Start(context.Background(), "test boot")
	require.NoError(t, err)
	assert.Equal(t, Active, sh.State())
}

func TestIdlePermitsUnloadWhenQuiescent(t *testing.T) {
	sh, _, _ := newTestShell(t, fakeSubscriber{}, nil)
	require.NoError(t, sh.Start(context.Background(), "test"))

	wait, permitted := sh.Idle()
	assert.True(t, permitted)
	assert.Equal(t, time.Duration(0), wait)
	assert.Equal(t, IdleCandidate, sh.State())
}

func TestIdleBlocksWhileSessionLive(t *testing.T) {
	sh, sessions, _ := newTestShell(t, fakeSubscriber{}, nil)
	require.NoError(t, sh.Start(context.Background(), "test"))

	_, _, err := sessions.Create(session.Caller{UserID: 1, Owner: "owner"}, "fp", false)
	require.NoError(t, err)

	wait, permitted := sh.Idle()
	assert.False(t, permitted)
	assert.Equal(t, sessions.MaxExpireDuration(), wait)
}
