package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rockingester/internal/config"
	"rockingester/internal/ingest"
	"rockingester/internal/logging"
	"rockingester/internal/metrics"
	"rockingester/internal/resolver"
	"rockingester/internal/scanner"
)

// ErrStoreUnavailable defers a whole pass because the metadata store did not answer.
var ErrStoreUnavailable = errors.New("metadata store unavailable")

// Store is the slice of the dataface used by a pass.
type Store interface {
	resolver.PlateFetcher
	ingest.Registrar
	Ping(ctx context.Context) error
}

// Option customizes a Collector.
type Option func(*Collector)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithMetrics records pass results on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// Collector owns the scanner, resolver and ingestor for one scrapable root.
type Collector struct {
	store         Store
	scanner       *scanner.Scanner
	resolver      *resolver.Resolver
	ingestor      *ingest.Ingestor
	metrics       *metrics.Collector
	logger        *slog.Logger
	workers       int
	pollInterval  time.Duration
	retryInterval time.Duration

	mu       sync.Mutex
	last     PassSummary
	hasLast  bool
	passes   int
	inFlight bool
}

// New wires a collector from configuration.
func New(cfg *config.Config, store Store, opts ...Option) (*Collector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("collector: config is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("collector: store is nil")
	}
	c := &Collector{
		store:         store,
		workers:       cfg.Collector.Workers,
		pollInterval:  cfg.PollInterval(),
		retryInterval: cfg.ErrorRetryInterval(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	base := c.logger
	c.logger = logging.NewComponentLogger(base, "collector")
	if c.workers <= 0 {
		c.workers = 1
	}

	sc, err := scanner.NewFromConfig(cfg, base)
	if err != nil {
		return nil, err
	}
	c.scanner = sc
	c.resolver = resolver.New(store, base)
	c.ingestor = ingest.NewFromConfig(cfg, store, base)
	return c, nil
}

// Run executes passes until ctx is cancelled. It always returns nil once ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started",
		logging.String("root", c.scanner.Root()),
		logging.Duration("poll_interval", c.pollInterval),
		logging.Int("workers", c.workers),
	)
	defer c.logger.Info("collector stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := c.pollInterval
		_, err := c.RunPass(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrStoreUnavailable):
			wait = c.retryInterval
			logging.ErrorWithContext(c.logger, "scan pass deferred", "store_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the metadata store is running and reachable"),
				logging.Duration("retry_in", wait),
			)
		default:
			logging.WarnWithContext(c.logger, "scan pass failed", "pass_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the scrapable root is mounted and readable"),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// RunPass performs one scan pass over the scrapable root.
func (c *Collector) RunPass(ctx context.Context) (PassSummary, error) {
	summary := PassSummary{PassID: uuid.NewString(), StartedAt: time.Now()}
	logger := c.logger.With(logging.String(logging.FieldPassID, summary.PassID))

	c.mu.Lock()
	c.inFlight = true
	c.mu.Unlock()

	err := c.runPass(ctx, logger, &summary)
	summary.FinishedAt = time.Now()
	if err != nil {
		summary.Err = err.Error()
	}

	c.metrics.ObservePass(outcomeFor(err), summary.Duration())
	c.metrics.Add(summary.totals())

	c.mu.Lock()
	c.inFlight = false
	c.last = summary
	c.hasLast = true
	c.passes++
	c.mu.Unlock()

	if err == nil {
		logger.Info("scan pass complete", summary.logAttrs()...)
	}
	return summary, err
}

func (c *Collector) runPass(ctx context.Context, logger *slog.Logger, summary *PassSummary) error {
	if err := c.store.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	candidates, err := c.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	summary.Candidates = len(candidates)
	if len(candidates) == 0 {
		logger.Debug("no candidate directories")
		return nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.workers)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome := c.processCandidate(ctx, logger, candidate)
			mu.Lock()
			summary.record(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

type candidateOutcome struct {
	deferred bool
	matched  bool
	result   ingest.Result
}

func (c *Collector) processCandidate(ctx context.Context, logger *slog.Logger, candidate scanner.Candidate) candidateOutcome {
	dirLogger := logger.With(
		logging.String(logging.FieldBarcode, candidate.Barcode),
		logging.String(logging.FieldDirectory, candidate.Path),
	)

	resolution, err := c.resolver.Resolve(ctx, candidate.Barcode)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(dirLogger, "barcode lookup failed", "barcode_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the metadata store is reachable"),
				logging.String(logging.FieldImpact, "directory is deferred to the next scan pass"),
			)
		}
		return candidateOutcome{deferred: true}
	}

	var result ingest.Result
	if resolution.Found {
		result = c.ingestor.Ingest(ctx, candidate, resolution.Plate)
		dirLogger.Info("plate directory ingested", directoryAttrs(result)...)
	} else {
		result = c.ingestor.Hold(ctx, candidate)
		dirLogger.Info("barcode not found, directory held", directoryAttrs(result)...)
	}
	return candidateOutcome{matched: resolution.Found, result: result}
}

func directoryAttrs(r ingest.Result) []any {
	return logging.Args(
		logging.Int("registered", r.Registered),
		logging.Int("already_registered", r.AlreadyRegistered),
		logging.Int("moved", r.Moved),
		logging.Int("held", r.Held),
		logging.Int("unsettled", r.Unsettled),
		logging.Int("failed", r.Failed),
		logging.Int("nested", r.Nested),
		logging.Bool("removed", r.Removed),
	)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.Is(err, ErrStoreUnavailable):
		return metrics.OutcomeStoreUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeScanFailed
	}
}

// LastPass returns the most recent pass summary.
func (c *Collector) LastPass() (PassSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Status is a point-in-time view of the collector.
type Status struct {
	Passes   int
	InFlight bool
	LastPass *PassSummary
}

// Status reports pass counters and the last summary.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Passes: c.passes, InFlight: c.inFlight}
	if c.hasLast {
		last := c.last
		st.LastPass = &last
	}
	return st
}
