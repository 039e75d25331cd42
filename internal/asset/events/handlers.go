package events

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/telemetry"
)

// ownerStorePaths returns the DE and CE store file paths for ev's owner,
// mirroring pipeline.ownerScope's Hap naming rule without importing
// pipeline (events has no identity.CallingInfo to resolve from, only the
// raw owner/appIndex the OS event carries).
func ownerStorePaths(dataDir string, ev Event) []string {
	userDir := filepath.Join(dataDir, strconv.Itoa(int(ev.UserID)))
	scope := store.OwnerScope{OwnerType: "Hap", AppID: ev.Owner, AppIndex: ev.AppIndex}
	var paths []string
	for _, class := range []store.ProtectionClass{store.DE, store.CE} {
		scope.Class = class
		paths = append(paths, filepath.Join(userDir, scope.FileName()))
	}
	return paths
}

// handlePackageRemoved implements §4.9's "package removed" row: under the
// caller's store lock, delete all non-sync rows for this owner; if any
// rows remain (persistent or group-shared survivors), keep the HUKS key,
// else delete it; clear sessions; notify the plugin.
func (r *Reactor) handlePackageRemoved(ctx context.Context, ev Event) error {
	lock := r.registry.UserLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	for _, path := range ownerStorePaths(r.registry.DataDir(), ev) {
		if _, err := os.Stat(path); err != nil {
			continue // this protection class was never populated
		}
		s, err := r.registry.Get(path)
		if err != nil {
			return err
		}

		cond := store.NewCondition().And("owner", ev.Owner)
		cond.RawSuffix = "AND sync_status = 0" // delete only NoNeedSync rows; sync-pending rows survive for later cloud reconciliation
		if _, err := s.Delete(ctx, nil, cond); err != nil {
			return asseterr.Wrap(asseterr.DatabaseError, err, "deleting rows for removed package %s", ev.Owner)
		}

		remaining, err := s.Count(ctx, nil, store.NewCondition().And("owner", ev.Owner))
		if err != nil {
			return err
		}
		if remaining == 0 {
			r.keys.DeleteByOwner(ev.UserID, ev.Owner)
		}
	}

	r.sessions.RemoveByCaller(session.Caller{UserID: ev.UserID, Owner: ev.Owner})
	r.notify(ctx, plugin.Notification{
		Type: plugin.OnPackageClear,
		Fields: map[string]string{
			"userId":      strconv.Itoa(int(ev.UserID)),
			"owner":       ev.Owner,
			"developerId": ev.DeveloperID,
		},
	})
	return nil
}

// handleUserRemoved implements §4.9: remove the user's entire DE
// directory and notify the plugin. CE data lives under the same user
// directory in this layout (the "enc_" prefix), so one RemoveAll covers
// both classes.
func (r *Reactor) handleUserRemoved(ctx context.Context, ev Event) error {
	lock := r.registry.UserLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	userDir := filepath.Join(r.registry.DataDir(), strconv.Itoa(int(ev.UserID)))
	if err := os.RemoveAll(userDir); err != nil {
		return asseterr.Wrap(asseterr.FileOperationError, err, "removing user directory for user %d", ev.UserID)
	}

	r.notify(ctx, plugin.Notification{
		Type:   plugin.OnUserRemoved,
		Fields: map[string]string{"userId": strconv.Itoa(int(ev.UserID))},
	})
	return nil
}

// handleUserUnlocked implements §4.9: run the legacy split for this user
// and kick off one plugin sync round.
func (r *Reactor) handleUserUnlocked(ctx context.Context, ev Event) error {
	if r.upgrader != nil && ev.LegacyDBPath != "" {
		if err := r.upgrader.Split(ctx, ev.UserID, ev.LegacyDBPath); err != nil {
			return err
		}
	}

	r.notify(ctx, plugin.Notification{
		Type:   plugin.OnUserUnlocked,
		Fields: map[string]string{"userId": strconv.Itoa(int(ev.UserID))},
	})
	return nil
}

// handleAppRestored implements §4.9: notify the plugin with
// (userId, bundleName, appIndex); the backup/restore system owns the
// actual row-level import.
func (r *Reactor) handleAppRestored(ctx context.Context, ev Event) error {
	r.notify(ctx, plugin.Notification{
		Type: plugin.OnAppRestore,
		Fields: map[string]string{
			"userId":     strconv.Itoa(int(ev.UserID)),
			"bundleName": ev.BundleName,
			"appIndex":   strconv.Itoa(int(ev.AppIndex)),
		},
	})
	return nil
}

// handleScreenOff implements §4.9's one-liner: drop every session that
// required the device to stay unlocked.
func (r *Reactor) handleScreenOff(ctx context.Context, ev Event) error {
	r.sessions.RemoveNeedDeviceUnlocked()
	return nil
}

// handleChargingOrPeriodic implements §4.9's best-effort backup sweep,
// rate-limited to at most once per hour per user via a persisted
// timestamp file (§6.3).
func (r *Reactor) handleChargingOrPeriodic(ctx context.Context, ev Event) error {
	marker := rateLimitFilePath(r.registry.DataDir(), ev.UserID, "last_backup_time.txt")
	if time.Since(readLastTrigger(marker)) < r.backupMinInterval {
		return nil
	}

	userDir := filepath.Join(r.registry.DataDir(), strconv.Itoa(int(ev.UserID)))
	entries, err := os.ReadDir(userDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return asseterr.Wrap(asseterr.FileOperationError, err, "listing user directory for backup sweep")
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		path := filepath.Join(userDir, entry.Name())
		s, err := r.registry.Get(path)
		if err != nil {
			// A store that fails to open is already flagged corrupt by
			// Open's own recovery path; skip it rather than fail the sweep.
			continue
		}
		_ = s.Backup()
	}

	telemetry.BackupSweepsTotal.Inc()
	return writeLastTrigger(marker, time.Now())
}

// handleConnectivityChange implements §4.9's sync trigger, rate-limited to
// at most once per 12 hours per user.
func (r *Reactor) handleConnectivityChange(ctx context.Context, ev Event) error {
	marker := rateLimitFilePath(r.registry.DataDir(), ev.UserID, "last_sync_trigger_time.txt")
	if time.Since(readLastTrigger(marker)) < r.syncTriggerMinInterval {
		return nil
	}

	r.notify(ctx, plugin.Notification{
		Type:   plugin.Sync,
		Fields: map[string]string{"userId": strconv.Itoa(int(ev.UserID))},
	})
	return writeLastTrigger(marker, time.Now())
}

// notify delegates to the plugin without surfacing its errors, mirroring
// pipeline.Pipeline.notify's §4.11 rule.
func (r *Reactor) notify(ctx context.Context, n plugin.Notification) {
	_, _ = r.notifier.Notify(ctx, n)
}
