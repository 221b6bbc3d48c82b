package collector

import (
	"time"

	"rockingester/internal/logging"
	"rockingester/internal/metrics"
)

// PassSummary aggregates the outcome of one scan pass.
type PassSummary struct {
	PassID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        string

	Candidates         int
	Ingested           int
	Held               int
	Deferred           int
	DirectoriesRemoved int

	Registered        int
	AlreadyRegistered int
	FilesMoved        int
	FilesHeld         int
	FilesUnsettled    int
	FilesFailed       int
}

// Duration is the wall time of the pass.
func (s PassSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *PassSummary) record(o candidateOutcome) {
	if o.deferred {
		s.Deferred++
		return
	}
	if o.matched {
		s.Ingested++
	} else {
		s.Held++
	}
	r := o.result
	if r.Removed {
		s.DirectoriesRemoved++
	}
	s.Registered += r.Registered
	s.AlreadyRegistered += r.AlreadyRegistered
	s.FilesMoved += r.Moved
	s.FilesHeld += r.Held
	s.FilesUnsettled += r.Unsettled
	s.FilesFailed += r.Failed
}

func (s PassSummary) totals() metrics.Totals {
	return metrics.Totals{
		Registered:         s.Registered,
		Moved:              s.FilesMoved,
		Held:               s.FilesHeld,
		Failed:             s.FilesFailed,
		DirectoriesRemoved: s.DirectoriesRemoved,
		Deferred:           s.Deferred,
	}
}

func (s PassSummary) logAttrs() []any {
	return logging.Args(
		logging.Int("candidates", s.Candidates),
		logging.Int("ingested_dirs", s.Ingested),
		logging.Int("held_dirs", s.Held),
		logging.Int("deferred_dirs", s.Deferred),
		logging.Int("removed_dirs", s.DirectoriesRemoved),
		logging.Int("registered", s.Registered),
		logging.Int("files_moved", s.FilesMoved),
		logging.Int("files_held", s.FilesHeld),
		logging.Int("files_unsettled", s.FilesUnsettled),
		logging.Int("files_failed", s.FilesFailed),
		logging.Duration("elapsed", s.Duration()),
	)
}
