// Package events implements the OS lifecycle event reactor (C9, §4.9):
// package-removed, user-removed, user-unlocked, app-restored, screen-off,
// charging/periodic, and connectivity-change. Every handler is audited to
// a zerolog-backed trail distinct from the service's slog log, grounded on
// the teacher pack's cuemby-warren/pkg/log zerolog wiring, and increments
// the in-flight counter shared with C10 before doing any work.
package events

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/upgrade"
	"github.com/assetsvc/assetsvc/internal/telemetry"
)

// Kind enumerates the OS events the reactor dispatches, per §4.9's table.
type Kind int

const (
	PackageRemoved Kind = iota
	UserRemoved
	UserUnlocked
	AppRestored
	ScreenOff
	ChargingOrPeriodic
	ConnectivityChange
)

func (k Kind) String() string {
	switch k {
	case PackageRemoved:
		return "PackageRemoved"
	case UserRemoved:
		return "UserRemoved"
	case UserUnlocked:
		return "UserUnlocked"
	case AppRestored:
		return "AppRestored"
	case ScreenOff:
		return "ScreenOff"
	case ChargingOrPeriodic:
		return "ChargingOrPeriodic"
	case ConnectivityChange:
		return "ConnectivityChange"
	default:
		return "Unknown"
	}
}

// Event carries one OS lifecycle notification into the reactor.
type Event struct {
	Kind Kind

	UserID      int32
	OwnerType   int
	Owner       string
	DeveloperID string
	GroupIDs    []string
	BundleName  string
	AppIndex    uint32

	LegacyDBPath string // UserUnlocked: path to this user's legacy store, if any
}

// InFlight is the service-wide in-flight counter C10's idle manager
// consults, per §4.9/§4.10/§5.
type InFlight struct {
	n atomic.Int64
}

func (c *InFlight) enter() { c.n.Add(1) }
func (c *InFlight) exit()  { c.n.Add(-1) }

// Count reports the live in-flight handler count.
func (c *InFlight) Count() int64 { return c.n.Load() }

// Reactor dispatches OS events per §4.9's table.
type Reactor struct {
	registry *store.Registry
	keys     *keymgr.Manager
	sessions *session.Table
	notifier plugin.Notifier
	upgrader *upgrade.Manager

	InFlight *InFlight

	audit zerolog.Logger

	backupMinInterval   time.Duration
	syncTriggerMinInterval time.Duration
}

// Config bundles the Reactor's rate-limit policy, wired from
// internal/config.
type Config struct {
	BackupMinInterval      time.Duration // §4.9: "at most once per hour"
	SyncTriggerMinInterval time.Duration // §4.9: "at most once per 12 hours"
}

// NewReactor constructs a Reactor. auditOut is typically os.Stdout or a
// dedicated audit file, kept distinct from the service's main slog sink.
func NewReactor(registry *store.Registry, keys *keymgr.Manager, sessions *session.Table, notifier plugin.Notifier, upgrader *upgrade.Manager, auditOut *os.File, cfg Config) *Reactor {
	if notifier == nil {
		notifier = plugin.Noop{}
	}
	if cfg.BackupMinInterval <= 0 {
		cfg.BackupMinInterval = time.Hour
	}
	if cfg.SyncTriggerMinInterval <= 0 {
		cfg.SyncTriggerMinInterval = 12 * time.Hour
	}
	return &Reactor{
		registry:               registry,
		keys:                   keys,
		sessions:               sessions,
		notifier:                notifier,
		upgrader:               upgrader,
		InFlight:               &InFlight{},
		audit:                  zerolog.New(auditOut).With().Timestamp().Str("component", "events").Logger(),
		backupMinInterval:      cfg.BackupMinInterval,
		syncTriggerMinInterval: cfg.SyncTriggerMinInterval,
	}
}

// Handle dispatches ev to the appropriate handler, per §4.9's table,
// incrementing InFlight for the handler's duration so C10 never unloads
// mid-event.
func (r *Reactor) Handle(ctx context.Context, ev Event) error {
	r.InFlight.enter()
	defer r.InFlight.exit()

	start := time.Now()
	var err error
	switch ev.Kind {
	case PackageRemoved:
		err = r.handlePackageRemoved(ctx, ev)
	case UserRemoved:
		err = r.handleUserRemoved(ctx, ev)
	case UserUnlocked:
		err = r.handleUserUnlocked(ctx, ev)
	case AppRestored:
		err = r.handleAppRestored(ctx, ev)
	case ScreenOff:
		err = r.handleScreenOff(ctx, ev)
	case ChargingOrPeriodic:
		err = r.handleChargingOrPeriodic(ctx, ev)
	case ConnectivityChange:
		err = r.handleConnectivityChange(ctx, ev)
	default:
		err = asseterr.New(asseterr.InvalidArgument, "unknown event kind")
	}

	outcome := "ok"
	logEntry := r.audit.Info()
	if err != nil {
		outcome = "error"
		logEntry = r.audit.Error().Err(err)
	}
	logEntry.
		Int("kind", int(ev.Kind)).
		Int32("user_id", ev.UserID).
		Str("owner", ev.Owner).
		Dur("elapsed", time.Since(start)).
		Msg("event handled")

	telemetry.EventsHandledTotal.WithLabelValues(ev.Kind.String(), outcome).Inc()
	telemetry.InFlightOperations.Set(float64(r.InFlight.Count()))
	return err
}

func rateLimitFilePath(dataRoot string, userID int32, name string) string {
	return filepath.Join(dataRoot, strconv.Itoa(int(userID)), name)
}

// readLastTrigger reads the persisted UNIX-seconds timestamp from path,
// per §6.3's last_trigger_time.txt format. Returns the zero time if the
// file is absent or unreadable.
func readLastTrigger(path string) time.Time {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// writeLastTrigger persists now as a decimal UNIX-seconds string with
// 0640 permissions, per §6.3.
func writeLastTrigger(path string, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.FormatInt(now.Unix(), 10)), 0640)
}
