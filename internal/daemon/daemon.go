package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"rockingester/internal/collector"
	"rockingester/internal/config"
	"rockingester/internal/dataface"
	"rockingester/internal/logging"
	"rockingester/internal/metrics"
	"rockingester/internal/preflight"
)

// Daemon runs the collector loop and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     dataface.Store
	collector *collector.Collector
	metrics   *metrics.Collector
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Collector    collector.Status
	LockFilePath string
	APIAddress   string
	Backend      string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetrics exposes m on the HTTP listener.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Daemon) {
		d.metrics = m
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store dataface.Store, coll *collector.Collector, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || coll == nil {
		return nil, errors.New("daemon requires config, store, and collector")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		collector: coll,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if cfg.Metrics.Enabled {
		d.api = newAPIServer(cfg.Metrics.Bind, d, logger)
	}
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks and launches the collector.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rockingester daemon instance is already running")
	}

	if err := preflight.Err(preflight.RunAll(ctx, d.cfg, d.store)); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.collector.Run(runCtx)
	}()

	d.cancel = cancel
	d.done = done
	d.running.Store(true)
	d.logger.Info("rockingester daemon started",
		logging.String("lock", d.lockPath),
		logging.String("root", d.cfg.Collector.ScrapableRoot),
	)
	return nil
}

// Stop cancels the collector, waits for the current directory work to end
// and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("rockingester daemon stopped")
}

// Wait blocks until the collector loop exits or ctx is done.
func (d *Daemon) Wait(ctx context.Context) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:      d.running.Load(),
		Collector:    d.collector.Status(),
		LockFilePath: d.lockPath,
		Backend:      d.cfg.Store.Backend,
	}
	st.APIAddress = d.api.address()
	return st
}
