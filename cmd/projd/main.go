// Package main is the projd daemon entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"projd/internal/classify"
	"projd/internal/config"
	"projd/internal/control"
	"projd/internal/journal"
	"projd/internal/launch"
	"projd/internal/layout"
	"projd/internal/pipeline"
	"projd/internal/procenv"
	"projd/internal/state"
	"projd/internal/store"
	"projd/internal/wm"
)

// Version info (set via ldflags)
var (
	Version = "0.1.0"
	Commit  = "dev"
)

var (
	cfg      = config.DefaultConfig()
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "projd",
	Short: "Project-scoped window synchronization daemon",
	Long: `projd tracks application windows through the window manager's event
stream, binds them to projects via launch-time environment identity, and
serves a control API over a private unix socket. Switching the active
project hides the windows of every other project and reveals its own.`,
	Version:       Version,
	RunE:          runDaemon,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "control server UDS path")
	flags.StringVar(&cfg.ManagerSocketPath, "manager-socket", "", "window manager IPC socket (default $WM_SOCK, $SWAYSOCK, $I3SOCK)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for project and layout documents")
	flags.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "sqlite event journal path (empty disables)")
	flags.StringVar(&cfg.LauncherCommand, "launcher", cfg.LauncherCommand, "launcher binary for layout restore")
	flags.IntVar(&cfg.MaxConnectAttempts, "connect-attempts", cfg.MaxConnectAttempts, "manager connection attempts before giving up")
	flags.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "manager round-trip timeout")
	flags.IntVar(&cfg.EventRingCapacity, "event-ring", cfg.EventRingCapacity, "recent-events ring capacity")
	flags.DurationVar(&cfg.JournalRetention, "journal-retention", cfg.JournalRetention, "journal entry retention window")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	managerSocket := cfg.ManagerSocket()
	if managerSocket == "" {
		return errors.New("no manager socket: set --manager-socket or $WM_SOCK")
	}

	files := store.New(cfg.DataDir)
	stateMgr := state.NewManager()
	if active, err := files.LoadActiveProject(); err != nil {
		logger.Warn("load active project failed, starting in global mode", zap.Error(err))
	} else if active.ProjectName != "" {
		stateMgr.SetActiveProject(active.ProjectName, active.ActivatedAt)
		logger.Info("resumed active project", zap.String("project", active.ProjectName))
	}

	ring := journal.NewRing(cfg.EventRingCapacity)
	var journalStore *journal.Store
	if cfg.JournalPath != "" {
		journalStore, err = journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journalStore.Close() //nolint:errcheck
		if err := journal.ApplyMigrations(ctx, journalStore.DB()); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
		startRetentionLoop(ctx, journalStore, cfg, logger)
	}

	manager := wm.NewManager(managerSocket, wm.ManagerOptions{
		CommandTimeout: cfg.CommandTimeout,
		Backoff:        cfg.ReconnectBackoff,
		BackoffCap:     cfg.ReconnectBackoffCap,
		MaxAttempts:    cfg.MaxConnectAttempts,
	}, logger.Named("wm"))

	reader := procenv.NewReader(logger.Named("procenv"))
	classifier := classify.New(reader, logger.Named("classify"))
	commander := pipeline.ManagerCommander{Manager: manager}
	pipe := pipeline.New(stateMgr, classifier, commander, ring, journalStore, logger.Named("pipeline"))

	manager.SetRebuildHook(func(ctx context.Context) error {
		stateMgr.BumpReconnects()
		if err := pipe.Rebuild(ctx); err != nil {
			return err
		}
		return pipe.ReconcileVisibility(ctx, stateMgr.ActiveProject().ProjectName)
	})

	if err := manager.ConnectWithRetry(ctx, cfg.MaxConnectAttempts); err != nil {
		return fmt.Errorf("connect to manager: %w", err)
	}
	defer manager.Close() //nolint:errcheck
	if err := pipe.Rebuild(ctx); err != nil {
		return fmt.Errorf("initial state rebuild: %w", err)
	}
	if err := pipe.ReconcileVisibility(ctx, stateMgr.ActiveProject().ProjectName); err != nil {
		logger.Warn("initial visibility reconcile failed", zap.Error(err))
	}

	launcher := launch.NewCommandLauncher(cfg.LauncherCommand, logger.Named("launch"))
	engine := layout.NewEngine(stateMgr, commander, launcher, layout.Options{
		WaitTimeout:  cfg.RestoreWaitTimeout,
		PollInterval: cfg.RestorePollInterval,
	}, logger.Named("layout"))

	srv := control.NewServer(cfg.SocketPath, control.Deps{
		State:  stateMgr,
		Files:  files,
		Ring:   ring,
		Layout: engine,
		Announce: func(ctx context.Context, projectName string) error {
			return announceSwitch(ctx, manager, pipe, projectName)
		},
		ManagerConnected: func() bool { return manager.Client() != nil },
		Version:          Version,
		Logger:           logger.Named("control"),
	})

	managerDone := make(chan error, 1)
	go func() { managerDone <- manager.Run(ctx) }()

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipe.Run(ctx, manager.Events())
	}()

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Start(ctx) }()

	logger.Info("projd started",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("manager_socket", managerSocket),
		zap.String("control_socket", cfg.SocketPath))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-managerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		cancel()
	case err := <-serverDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control server shutdown", zap.Error(err))
	}
	<-pipelineDone
	if runErr != nil {
		logger.Error("daemon exiting", zap.Error(runErr))
		return runErr
	}
	logger.Info("daemon exiting")
	return nil
}

// announceSwitch broadcasts the project change as a tick so it is ordered
// with the window events already in flight. When the manager is unreachable
// the visibility pass runs directly; state must not drift just because the
// bus is down.
func announceSwitch(ctx context.Context, manager *wm.Manager, pipe *pipeline.Pipeline, projectName string) error {
	client := manager.Client()
	if client != nil {
		payload := fmt.Sprintf(`{"type":%q,"project":%q}`, pipeline.TickTypeProjectSwitched, projectName)
		if err := client.SendTick(ctx, payload); err == nil {
			return nil
		}
	}
	return pipe.ReconcileVisibility(ctx, projectName)
}

func startRetentionLoop(ctx context.Context, journalStore *journal.Store, cfg config.Config, logger *zap.Logger) {
	run := func() {
		cutoff := time.Now().UTC().Add(-cfg.JournalRetention)
		pruned, err := journalStore.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("journal retention prune failed", zap.Error(err))
			return
		}
		if pruned > 0 {
			logger.Debug("journal pruned", zap.Int64("entries", pruned))
		}
	}
	go func() {
		run()
		ticker := time.NewTicker(cfg.RetentionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
