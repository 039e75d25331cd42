package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
)

type recordingNotifier struct {
	notifications []plugin.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n plugin.Notification) (uint32, error) {
	r.notifications = append(r.notifications, n)
	return 0, nil
}

func (r *recordingNotifier) QuerySyncResult(context.Context, int32, string) (plugin.SyncResult, error) {
	return plugin.SyncResult{}, nil
}

func newTestReactor(t *testing.T) (*Reactor, *store.Registry, *recordingNotifier) {
	t.Helper()
	dir := t.TempDir()
	registry, err := store.NewRegistry(dir)
	require.NoError(t, err)

	secret, err := keymgr.RandomMasterSecret()
	require.NoError(t, err)
	keys := keymgr.NewManager(secret)
	sessions := session.NewTable(time.Minute)
	notifier := &recordingNotifier{}

	auditFile, err := os.CreateTemp(dir, "audit-*.jsonl")
	require.NoError(t, err)
	t.Cleanup(func() { auditFile.Close() })

	r := NewReactor(registry, keys, sessions, notifier, nil, auditFile, Config{
		BackupMinInterval:      time.Hour,
		SyncTriggerMinInterval: 12 * time.Hour,
	})
	return r, registry, notifier
}

func TestHandlePackageRemovedDeletesNonSyncRowsOnly(t *testing.T) {
	r, registry, notifier := newTestReactor(t)
	ctx := context.Background()

	ev := Event{Kind: PackageRemoved, UserID: 100, Owner: "com.example.app", AppIndex: 0}
	paths := ownerStorePaths(registry.DataDir(), ev)
	require.Len(t, paths, 2)
	dePath := paths[0]

	require.NoError(t, os.MkdirAll(filepath.Dir(dePath), 0700))
	s, err := registry.Get(dePath)
	require.NoError(t, err)

	txn, err := s.BeginTxn(ctx)
	require.NoError(t, err)
	_, err = s.Insert(ctx, txn, store.Row{
		Alias: "no-sync", Owner: ev.Owner, SyncStatus: store.NoNeedSync,
		CreateTime: "1", UpdateTime: "1",
	})
	require.NoError(t, err)
	_, err = s.Insert(ctx, txn, store.Row{
		Alias: "pending-sync", Owner: ev.Owner, SyncStatus: store.SyncAdd,
		CreateTime: "1", UpdateTime: "1",
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	err = r.Handle(ctx, ev)
	require.NoError(t, err)

	remaining, err := s.Count(ctx, nil, store.NewCondition().And("owner", ev.Owner))
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining, "only the sync-pending row should survive package removal")

	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, plugin.OnPackageClear, notifier.notifications[0].Type)
}

func TestHandleScreenOffDropsOnlyDeviceUnlockedSessions(t *testing.T) {
	r, _, _ := newTestReactor(t)
	ctx := context.Background()

	caller := session.Caller{UserID: 100, Owner: "owner"}
	_, _, err := r.sessions.Create(caller, "fp-a", true)
	require.NoError(t, err)
	_, _, err = r.sessions.Create(caller, "fp-b", false)
	require.NoError(t, err)
	require.Equal(t, 2, r.sessions.Len())

	require.NoError(t, r.Handle(ctx, Event{Kind: ScreenOff}))

	assert.Equal(t, 1, r.sessions.Len())
}

func TestHandleChargingOrPeriodicRateLimited(t *testing.T) {
	r, registry, _ := newTestReactor(t)
	ctx := context.Background()
	ev := Event{Kind: ChargingOrPeriodic, UserID: 5}

	userDir := filepath.Join(registry.DataDir(), "5")
	require.NoError(t, os.MkdirAll(userDir, 0700))
	dbPath := filepath.Join(userDir, "Hap_com.example_0.db")
	_, err := registry.Get(dbPath)
	require.NoError(t, err)

	require.NoError(t, r.Handle(ctx, ev))
	assert.FileExists(t, dbPath+".backup")

	require.NoError(t, os.Remove(dbPath+".backup"))
	require.NoError(t, r.Handle(ctx, ev))
	_, statErr := os.Stat(dbPath + ".backup")
	assert.Error(t, statErr, "second sweep within the hour should be rate-limited and skip backup")
}

func TestHandleConnectivityChangeRateLimited(t *testing.T) {
	r, _, notifier := newTestReactor(t)
	ctx := context.Background()
	ev := Event{Kind: ConnectivityChange, UserID: 7}

	require.NoError(t, r.Handle(ctx, ev))
	require.NoError(t, r.Handle(ctx, ev))

	assert.Len(t, notifier.notifications, 1, "second connectivity change within 12h should be suppressed")
}

func TestHandleUserRemovedDeletesDirectory(t *testing.T) {
	r, registry, notifier := newTestReactor(t)
	ctx := context.Background()
	ev := Event{Kind: UserRemoved, UserID: 42}

	userDir := filepath.Join(registry.DataDir(), "42")
	require.NoError(t, os.MkdirAll(userDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "marker.db"), []byte("x"), 0600))

	require.NoError(t, r.Handle(ctx, ev))

	_, err := os.Stat(userDir)
	assert.True(t, os.IsNotExist(err))
	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, plugin.OnUserRemoved, notifier.notifications[0].Type)
}
