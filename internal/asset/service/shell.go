// Package service implements the service shell lifecycle state machine
// (C10, §4.10): Starting, Active, IdleCandidate, Stopped. It owns the
// idle-unload decision, event-bus subscription, and the one-shot legacy
// upgrade task spawned on start.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/assetsvc/assetsvc/internal/asset/events"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/upgrade"
	"github.com/assetsvc/assetsvc/internal/telemetry"
)

// State is one of the four lifecycle states of §4.10.
type State int

const (
	Starting State = iota
	Active
	IdleCandidate
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Active:
		return "Active"
	case IdleCandidate:
		return "IdleCandidate"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// idleFixedDelay is the delay Idle() reports while the in-flight counter
// is non-zero but no session is live, per §4.10's "fixed delay" rule.
const idleFixedDelay = 5 * time.Second

// EventSubscriber abstracts the two OS event-subscription paths the real
// device exposes, per §9's "Event subscription order" note: the
// reimplementation tries a primary API, then a documented fallback, and
// reports which one succeeded.
type EventSubscriber interface {
	Subscribe(ctx context.Context, reactor *events.Reactor) error
}

// Router is whatever transport publishes the IPC interface once the
// shell is active (internal/transport's chi.Router, in production).
type Router interface {
	Publish(ctx context.Context) error
}

// Shell drives the lifecycle state machine described in §4.10.
type Shell struct {
	registry *store.Registry
	sessions *session.Table
	reactor  *events.Reactor
	upgrader *upgrade.Manager
	primary  EventSubscriber
	fallback EventSubscriber
	router   Router
	log      *slog.Logger

	mu    sync.Mutex
	state State
}

// New constructs a Shell in the Starting state. fallback may be nil if
// there is no secondary subscription path to try.
func New(registry *store.Registry, sessions *session.Table, reactor *events.Reactor, upgrader *upgrade.Manager, primary, fallback EventSubscriber, router Router, log *slog.Logger) *Shell {
	if log == nil {
		log = slog.Default()
	}
	return &Shell{
		registry: registry,
		sessions: sessions,
		reactor:  reactor,
		upgrader: upgrader,
		primary:  primary,
		fallback: fallback,
		router:   router,
		log:      log,
		state:    Starting,
	}
}

// State reports the shell's current lifecycle state.
func (sh *Shell) State() State {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state
}

// Start implements §4.10's start(reason): subscribes to events (trying
// the primary path, then the fallback, per §9), publishes the transport
// router, and spawns the one-shot upgrade task for every user directory
// already present under the registry's data root. It transitions to
// Active on success.
func (sh *Shell) Start(ctx context.Context, reason string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.log.Info("service starting", "reason", reason)

	if err := sh.subscribeEvents(ctx); err != nil {
		sh.log.Error("event subscription failed on both paths", "error", err)
	}

	if sh.router != nil {
		if err := sh.router.Publish(ctx); err != nil {
			return err
		}
	}

	sh.spawnUpgradeTasks(ctx)

	sh.state = Active
	return nil
}

// subscribeEvents tries the primary subscription path, falling back to
// the secondary path on failure, logging which one succeeded per §9.
func (sh *Shell) subscribeEvents(ctx context.Context) error {
	if sh.primary != nil {
		if err := sh.primary.Subscribe(ctx, sh.reactor); err == nil {
			sh.log.Info("subscribed to lifecycle events", "path", "primary")
			return nil
		} else {
			sh.log.Warn("primary event subscription failed, trying fallback", "error", err)
		}
	}
	if sh.fallback != nil {
		if err := sh.fallback.Subscribe(ctx, sh.reactor); err == nil {
			sh.log.Info("subscribed to lifecycle events", "path", "fallback")
			return nil
		} else {
			return err
		}
	}
	return nil
}

// spawnUpgradeTasks runs C8's split for every user directory already
// present under the data root, best-effort: a failed split for one user
// is logged and does not block the others or the start sequence.
func (sh *Shell) spawnUpgradeTasks(ctx context.Context) {
	if sh.upgrader == nil {
		return
	}
	entries, err := os.ReadDir(sh.registry.DataDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		userID, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		legacyPath := filepath.Join(sh.registry.DataDir(), entry.Name(), "asset.db")
		go func(uid int32, path string) {
			if err := sh.upgrader.Split(ctx, uid, path); err != nil {
				sh.log.Error("legacy split failed", "user_id", uid, "error", err)
			}
		}(int32(userID), legacyPath)
	}
}

// Idle implements §4.10's idle(): the time until the next allowed
// unload, and whether unload is currently permitted.
func (sh *Shell) Idle() (time.Duration, bool) {
	sh.mu.Lock()
	if sh.state == Active {
		sh.state = IdleCandidate
	}
	sh.mu.Unlock()

	telemetry.SessionsLive.Set(float64(sh.sessions.Len()))

	if sh.sessions.Len() > 0 {
		return sh.sessions.MaxExpireDuration(), false
	}
	if sh.reactor != nil && sh.reactor.InFlight.Count() > 0 {
		return idleFixedDelay, false
	}
	return 0, true
}

// Stop implements §4.10's stop(): wait for the in-flight counter to drain,
// then transition to Stopped. The two subscription paths have no
// unsubscribe handle, and the shell holds no plugin reference, so Stop
// releases neither.
func (sh *Shell) Stop(ctx context.Context) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for sh.reactor != nil && sh.reactor.InFlight.Count() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	sh.log.Info("service stopping")
	sh.state = Stopped
}
