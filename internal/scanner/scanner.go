package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"rockingester/internal/config"
	"rockingester/internal/logging"
)

var (
	// ErrUnparseable marks a directory name that does not match the plate pattern.
	ErrUnparseable = errors.New("unparseable directory name")
	// ErrRootUnavailable is returned when the scrapable root cannot be read.
	ErrRootUnavailable = errors.New("scrapable root unavailable")
)

const dateLayout = "2006-01-02"

// Candidate is a plate image directory discovered during one scan pass.
type Candidate struct {
	Path       string
	Name       string
	Barcode    string
	Date       time.Time
	Instrument string
	PlateType  string
	Depth      int
}

// Options configures a Scanner.
type Options struct {
	Root     string
	MaxDepth int
	Pattern  string
	// Exclude lists directories that are never scanned, such as the archives.
	Exclude []string
	Logger  *slog.Logger
}

// Scanner walks the scrapable root looking for candidate directories.
type Scanner struct {
	root     string
	maxDepth int
	pattern  *regexp.Regexp
	groups   map[string]int
	exclude  map[string]struct{}
	logger   *slog.Logger
}

// New builds a scanner from opts.
func New(opts Options) (*Scanner, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, fmt.Errorf("scanner: root is required")
	}
	pattern := opts.Pattern
	if strings.TrimSpace(pattern) == "" {
		pattern = config.DefaultDirectoryPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("scanner: compile pattern: %w", err)
	}
	groups := make(map[string]int)
	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = i
		}
	}
	for _, required := range []string{"barcode", "date", "instrument"} {
		if _, ok := groups[required]; !ok {
			return nil, fmt.Errorf("scanner: pattern is missing named group %q", required)
		}
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, dir := range opts.Exclude {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		exclude[filepath.Clean(dir)] = struct{}{}
	}

	return &Scanner{
		root:     filepath.Clean(root),
		maxDepth: maxDepth,
		pattern:  re,
		groups:   groups,
		exclude:  exclude,
		logger:   logging.NewComponentLogger(opts.Logger, "scanner"),
	}, nil
}

// NewFromConfig builds a scanner for the collector section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Scanner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("scanner: config is nil")
	}
	return New(Options{
		Root:     cfg.Collector.ScrapableRoot,
		MaxDepth: cfg.Collector.MaxDepth,
		Pattern:  cfg.Collector.DirectoryPattern,
		Exclude:  []string{cfg.Collector.IngestedDirectory, cfg.Collector.NobarcodeDirectory},
		Logger:   logger,
	})
}

// Root returns the directory being scanned.
func (s *Scanner) Root() string {
	return s.root
}

// Parse splits a directory name into its plate fields.
func (s *Scanner) Parse(name string) (Candidate, error) {
	match := s.pattern.FindStringSubmatch(name)
	if match == nil {
		return Candidate{}, fmt.Errorf("%w: %q", ErrUnparseable, name)
	}
	group := func(key string) string {
		idx, ok := s.groups[key]
		if !ok || idx >= len(match) {
			return ""
		}
		return match[idx]
	}

	barcode := group("barcode")
	if barcode == "" {
		return Candidate{}, fmt.Errorf("%w: %q has no barcode", ErrUnparseable, name)
	}
	date, err := time.Parse(dateLayout, group("date"))
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %q has invalid date: %v", ErrUnparseable, name, err)
	}
	return Candidate{
		Name:       name,
		Barcode:    barcode,
		Date:       date,
		Instrument: group("instrument"),
		PlateType:  group("platetype"),
	}, nil
}

// Candidates lazily yields plate directories in lexical order per level.
// A failure to read the root ends the sequence; unreadable subdirectories are
// yielded as errors and skipped. Cancellation is checked between entries.
func (s *Scanner) Candidates(ctx context.Context) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		if ctx == nil {
			ctx = context.Background()
		}
		info, err := os.Stat(s.root)
		if err != nil {
			yield(Candidate{}, fmt.Errorf("%w: %w", ErrRootUnavailable, err))
			return
		}
		if !info.IsDir() {
			yield(Candidate{}, fmt.Errorf("%w: %q is not a directory", ErrRootUnavailable, s.root))
			return
		}
		entries, err := os.ReadDir(s.root)
		if err != nil {
			yield(Candidate{}, fmt.Errorf("%w: %w", ErrRootUnavailable, err))
			return
		}
		s.walkEntries(ctx, s.root, entries, 1, yield)
	}
}

func (s *Scanner) walk(ctx context.Context, dir string, depth int, yield func(Candidate, error) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return yield(Candidate{}, fmt.Errorf("scanner: read %q: %w", dir, err))
	}
	return s.walkEntries(ctx, dir, entries, depth, yield)
}

func (s *Scanner) walkEntries(ctx context.Context, dir string, entries []os.DirEntry, depth int, yield func(Candidate, error) bool) bool {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			yield(Candidate{}, err)
			return false
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if _, skip := s.exclude[path]; skip {
			continue
		}

		candidate, parseErr := s.Parse(name)
		if parseErr == nil {
			candidate.Path = path
			candidate.Depth = depth
			if !yield(candidate, nil) {
				return false
			}
			continue
		}

		if depth < s.maxDepth {
			if !s.walk(ctx, path, depth+1, yield) {
				return false
			}
			continue
		}

		logging.WarnWithContext(s.logger, "skipping unparseable directory", "directory_unparseable",
			logging.String(logging.FieldDirectory, path),
			logging.Error(parseErr),
			logging.String(logging.FieldErrorHint, "rename the directory to <barcode>_<YYYY-MM-DD>_<instrument>-<platetype>"),
			logging.String(logging.FieldImpact, "directory is left in place and not ingested"),
		)
	}
	return true
}

// Scan collects every candidate. Root failures and cancellation are returned;
// unreadable subdirectories are logged and skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var out []Candidate
	for candidate, err := range s.Candidates(ctx) {
		if err != nil {
			if errors.Is(err, ErrRootUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return out, err
			}
			logging.WarnWithContext(s.logger, "directory read failed", "directory_read_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the scrapable root"),
			)
			continue
		}
		out = append(out, candidate)
	}
	return out, nil
}
