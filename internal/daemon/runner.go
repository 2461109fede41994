package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ipsix/geopolis/internal/analysis"
	"github.com/ipsix/geopolis/internal/api"
	"github.com/ipsix/geopolis/internal/config"
	"github.com/ipsix/geopolis/internal/logging"
	"github.com/ipsix/geopolis/internal/plugin"
	"github.com/ipsix/geopolis/internal/plugins/geo"
	"github.com/ipsix/geopolis/internal/scheduler"
	"github.com/ipsix/geopolis/internal/state"
	"github.com/ipsix/geopolis/internal/storage"
)

type Runner struct {
	cfg    config.Config
	logger *logging.Logger

	store    *storage.BadgerStore
	journal  *storage.Journal
	results  *state.ResultCache
	registry *plugin.Registry
	executor *plugin.Executor
	sched    *scheduler.Scheduler
	server   *api.Server
}

func New(cfg config.Config, logger *logging.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger,
	}
}

// Build wires every component without starting anything. It is safe to call
// once; Run calls it when needed.
func (r *Runner) Build(ctx context.Context) error {
	store, err := storage.NewBadgerStoreWithKey(r.cfg.Storage.DBPath, r.cfg.Storage.EncryptionKeyBase64, r.logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	r.store = store
	r.journal = storage.NewJournal(store)
	r.results = state.NewResultCache()

	settings := plugin.NewSettings(r.cfg.Settings.APIKeys, r.cfg.Settings.Thresholds, r.cfg.Settings.Endpoints)
	r.registry = plugin.NewRegistry(settings, r.logger)
	if err := geo.Register(r.registry); err != nil {
		return err
	}
	if _, err := r.reload(ctx); err != nil {
		return err
	}

	r.executor = plugin.NewExecutor(r.registry, plugin.Recorders{r.journal, r.results}, r.logger)

	r.sched = scheduler.New(r.logger)
	if err := r.addJobs(); err != nil {
		return err
	}

	r.server = api.New(r.cfg.Server, r.logger, api.Deps{
		Registry:  r.registry,
		Executor:  r.executor,
		Journal:   r.journal,
		Results:   r.results,
		Scheduler: r.sched,
		RSS:       analysis.NewReader(r.cfg.Analysis.RSSTimeoutDuration(), r.cfg.Analysis.RSSMaxItems, r.logger),
		Reload:    r.reload,
	})
	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	if r.server == nil {
		if err := r.Build(ctx); err != nil {
			r.closeStore()
			return err
		}
	}
	for _, warning := range r.cfg.Warnings() {
		r.logger.Warn(warning)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	r.sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- r.server.Start(ctx)
	}()

	r.logger.Info("daemon started",
		logging.Field{Key: "addr", Value: r.cfg.Addr()},
		logging.Field{Key: "plugins", Value: r.registry.Len()},
	)

	go r.handleSignals(sigCh, cancel, func() {
		if _, err := r.reload(ctx); err != nil {
			r.logger.Error("plugin reload failed", logging.Field{Key: "error", Value: err.Error()})
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-serverErr
	case runErr = <-serverErr:
		cancel()
	}
	if runErr != nil {
		runErr = fmt.Errorf("api server: %w", runErr)
	}

	r.shutdown(r.cfg.Server.ShutdownTimeoutDuration())
	return runErr
}

// reload rescans the plugin directory. When the directory cannot be read and
// the builtin fallback is enabled, every compiled-in plugin is registered
// instead.
func (r *Runner) reload(ctx context.Context) (plugin.DiscoveryReport, error) {
	report, err := r.registry.Discover(ctx, r.cfg.Plugins.Dir)
	if err != nil {
		if !r.cfg.Plugins.BuiltinFallback || errors.Is(err, context.Canceled) {
			return report, err
		}
		r.logger.Warn("plugin discovery failed, using builtin plugins",
			logging.Field{Key: "dir", Value: r.cfg.Plugins.Dir},
			logging.Field{Key: "error", Value: err.Error()},
		)
		return r.registry.RegisterBuiltins(), nil
	}
	if skipped := report.Err(); skipped != nil {
		r.logger.Warn("some plugins were skipped", logging.Field{Key: "error", Value: skipped.Error()})
	}
	return report, nil
}

func (r *Runner) addJobs() error {
	if schedule := r.cfg.Plugins.RefreshSchedule; schedule != "" {
		err := r.sched.AddJob(scheduler.JobConfig{
			Name:     "plugin-refresh",
			Schedule: schedule,
			Task: func(ctx context.Context) error {
				_, err := r.reload(ctx)
				return err
			},
		})
		if err != nil {
			return err
		}
	}
	if schedule := r.cfg.Storage.PruneSchedule; schedule != "" && r.cfg.Storage.RetentionDays > 0 {
		err := r.sched.AddJob(scheduler.JobConfig{
			Name:       "journal-prune",
			Schedule:   schedule,
			RunOnStart: true,
			Task:       r.prune,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) prune(context.Context) error {
	cutoff := time.Now().Add(-r.cfg.Storage.Retention())
	removed, err := r.journal.PruneOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	if removed > 0 {
		r.logger.Info("journal pruned", logging.Field{Key: "removed", Value: removed})
	}
	return nil
}

func (r *Runner) handleSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, reload func()) {
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			r.logger.Info("plugin reload requested")
			reload()
		case syscall.SIGINT, syscall.SIGTERM:
			r.logger.Warn("shutdown signal received", logging.Field{Key: "signal", Value: sig.String()})
			cancel()
			return
		default:
			r.logger.Warn("unexpected signal received", logging.Field{Key: "signal", Value: sig.String()})
		}
	}
}

func (r *Runner) shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r.logger.Info("shutdown starting", logging.Field{Key: "timeout", Value: timeout.String()})

	stopped := make(chan struct{})
	go func() {
		r.sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		r.logger.Warn("scheduler did not stop before timeout")
	}

	r.closeStore()
	r.logger.Info("shutdown complete")
}

func (r *Runner) closeStore() {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("journal close failed", logging.Field{Key: "error", Value: err.Error()})
	}
	r.store = nil
}
