// Command assetsvc runs the device-local asset (secret) service: the
// HTTP transport standing in for the out-of-scope FFI surface, the OS
// lifecycle event reactor, and the one-shot legacy-store migration,
// grounded on cuemby-warren's cmd/warren cobra layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetsvc/assetsvc/internal/asset/events"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/pipeline"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/service"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/upgrade"
	"github.com/assetsvc/assetsvc/internal/config"
	"github.com/assetsvc/assetsvc/internal/logging"
	"github.com/assetsvc/assetsvc/internal/telemetry"
	"github.com/assetsvc/assetsvc/internal/transport"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "assetsvc",
	Short:   "Device-local multi-tenant asset (secret) service",
	Version: Version,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateLegacyCmd, backupNowCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the asset service: transport, event reactor, and idle manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
		slog.SetDefault(log)
		log.Info("starting assetsvc", "data_root", cfg.DataRoot, "listen", cfg.ListenAddr())

		registry, err := store.NewRegistry(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("opening store registry: %w", err)
		}

		masterSecret, err := keymgr.LoadOrCreateMasterSecret(filepath.Join(cfg.DataRoot, "master.key"))
		if err != nil {
			return fmt.Errorf("loading master secret: %w", err)
		}
		keys := keymgr.NewManager(masterSecret)
		sessions := session.NewTable(cfg.SessionMaxAge)
		upgrader := upgrade.NewManager(registry)
		notifier := plugin.Noop{}

		auditFile, err := openAuditLog(cfg.AuditLogPath)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer auditFile.Close()

		reactor := events.NewReactor(registry, keys, sessions, notifier, upgrader, auditFile, events.Config{
			BackupMinInterval:      cfg.BackupMinInterval,
			SyncTriggerMinInterval: cfg.SyncTriggerMinInterval,
		})

		pipe := pipeline.New(registry, keys, sessions, notifier, allowAllPermissions{}, allowAllAccounts{})
		router := transport.NewRouter(&transport.Handler{Pipeline: pipe})
		reg := telemetry.NewRegistry()
		publisher := transport.NewHTTPPublisher(cfg.ListenAddr(), cfg.MetricsPath, router, reg, log)

		shell := service.New(registry, sessions, reactor, upgrader,
			service.CommonEventSubscriber{}, service.WantSubscriber{}, publisher, log)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := shell.Start(ctx, "cli serve"); err != nil {
			return fmt.Errorf("starting service shell: %w", err)
		}

		stopIdleWatch := watchIdle(ctx, shell, log)
		defer stopIdleWatch()

		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		shell.Stop(shutdownCtx)
		return publisher.Shutdown(shutdownCtx)
	},
}

// watchIdle periodically logs §4.10's idle() decision. The real device
// uses this to decide when to unload the service process; a standalone
// binary only has itself to report to, so it logs rather than exiting.
func watchIdle(ctx context.Context, shell *service.Shell, log *slog.Logger) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				delay, permitted := shell.Idle()
				log.Debug("idle check", "state", shell.State().String(), "unload_permitted", permitted, "next_check", delay)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(stop) }
}

func openAuditLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
}

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Split one user's legacy asset.db into per-owner sharded stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		userID, err := cmd.Flags().GetInt32("user-id")
		if err != nil || userID == 0 {
			return fmt.Errorf("--user-id is required")
		}
		legacyPath, _ := cmd.Flags().GetString("legacy-path")
		if legacyPath == "" {
			legacyPath = filepath.Join(cfg.DataRoot, strconv.Itoa(int(userID)), "asset.db")
		}

		registry, err := store.NewRegistry(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("opening store registry: %w", err)
		}
		upgrader := upgrade.NewManager(registry)

		log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
		log.Info("migrating legacy store", "user_id", userID, "path", legacyPath)
		if err := upgrader.Split(cmd.Context(), userID, legacyPath); err != nil {
			return fmt.Errorf("split failed: %w", err)
		}
		log.Info("migration complete", "user_id", userID)
		return nil
	},
}

func init() {
	migrateLegacyCmd.Flags().Int32("user-id", 0, "user id to migrate (required)")
	migrateLegacyCmd.Flags().String("legacy-path", "", "path to the legacy asset.db (default: <data-root>/<user-id>/asset.db)")
}

var backupNowCmd = &cobra.Command{
	Use:   "backup-now",
	Short: "Run one charging/periodic backup sweep across every user directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		registry, err := store.NewRegistry(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("opening store registry: %w", err)
		}
		masterSecret, err := keymgr.LoadOrCreateMasterSecret(filepath.Join(cfg.DataRoot, "master.key"))
		if err != nil {
			return fmt.Errorf("loading master secret: %w", err)
		}
		keys := keymgr.NewManager(masterSecret)
		sessions := session.NewTable(cfg.SessionMaxAge)

		auditFile, err := openAuditLog(cfg.AuditLogPath)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer auditFile.Close()

		reactor := events.NewReactor(registry, keys, sessions, plugin.Noop{}, nil, auditFile, events.Config{
			BackupMinInterval:      time.Nanosecond, // bypass the rate limit; this command is the rate limit
			SyncTriggerMinInterval: cfg.SyncTriggerMinInterval,
		})

		entries, err := os.ReadDir(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("listing data root: %w", err)
		}

		log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			userID, err := strconv.Atoi(entry.Name())
			if err != nil {
				continue
			}
			if err := reactor.Handle(cmd.Context(), events.Event{Kind: events.ChargingOrPeriodic, UserID: int32(userID)}); err != nil {
				log.Error("backup sweep failed", "user_id", userID, "error", err)
				continue
			}
			log.Info("backup sweep complete", "user_id", userID)
		}
		return nil
	},
}

// allowAllPermissions is the serve command's default Permissions binding
// for the out-of-scope access-token service (§1): cross-user access is
// always denied, persistence access always granted, matching the
// permissive single-binary deployment this transport targets.
type allowAllPermissions struct{}

func (allowAllPermissions) HasCrossUserPermission(identity.IPCCaller) bool   { return false }
func (allowAllPermissions) HasPersistencePermission(identity.IPCCaller) bool { return true }

// allowAllAccounts is the serve command's default binding for the
// out-of-scope OS account service: every user id is treated as existing.
type allowAllAccounts struct{}

func (allowAllAccounts) UserIDExists(uint32) bool { return true }
