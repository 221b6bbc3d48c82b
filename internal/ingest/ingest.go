package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"rockingester/internal/config"
	"rockingester/internal/dataface"
	"rockingester/internal/fileutil"
	"rockingester/internal/logging"
	"rockingester/internal/scanner"
)

// Registrar is the slice of the dataface the ingestor writes to.
type Registrar interface {
	RegisterCrystalWell(ctx context.Context, well dataface.CrystalWell) (bool, error)
}

// Options configures an Ingestor.
type Options struct {
	IngestedDirectory  string
	NobarcodeDirectory string
	ImageExtensions    []string
	// Settle is the minimum age of a file before it is moved.
	Settle time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

// Ingestor processes one candidate directory at a time.
type Ingestor struct {
	store      Registrar
	ingested   string
	nobarcode  string
	extensions map[string]struct{}
	settle     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Result summarises the work done on one directory.
type Result struct {
	Directory         string
	Archive           string
	Registered        int
	AlreadyRegistered int
	Moved             int
	Held              int
	Unsettled         int
	Failed            int
	// Nested counts subdirectories and symlinks relocated with the files.
	Nested  int
	Removed bool
}

var positionPattern = regexp.MustCompile(`^([A-Za-z]{1,2}[0-9]{1,3})_([0-9]+)$`)

// New constructs an ingestor writing to store.
func New(store Registrar, opts Options) *Ingestor {
	exts := opts.ImageExtensions
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg", ".png"}
	}
	extensions := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		store:      store,
		ingested:   filepath.Clean(opts.IngestedDirectory),
		nobarcode:  filepath.Clean(opts.NobarcodeDirectory),
		extensions: extensions,
		settle:     opts.Settle,
		logger:     logging.NewComponentLogger(opts.Logger, "ingest"),
		now:        now,
	}
}

// NewFromConfig builds an ingestor for the collector section of cfg.
func NewFromConfig(cfg *config.Config, store Registrar, logger *slog.Logger) *Ingestor {
	return New(store, Options{
		IngestedDirectory:  cfg.Collector.IngestedDirectory,
		NobarcodeDirectory: cfg.Collector.NobarcodeDirectory,
		ImageExtensions:    cfg.Collector.ImageExtensions,
		Settle:             cfg.SettleDuration(),
		Logger:             logger,
	})
}

// Ingest registers and archives the files of a directory whose barcode matched plate.
func (i *Ingestor) Ingest(ctx context.Context, candidate scanner.Candidate, plate *dataface.CrystalPlate) Result {
	if plate == nil {
		return i.Hold(ctx, candidate)
	}
	return i.process(ctx, candidate, filepath.Join(i.ingested, candidate.Name), plate)
}

// Hold moves the files of an unmatched directory into the nobarcode area.
// Nothing is written to the dataface.
func (i *Ingestor) Hold(ctx context.Context, candidate scanner.Candidate) Result {
	return i.process(ctx, candidate, filepath.Join(i.nobarcode, candidate.Name), nil)
}

func (i *Ingestor) process(ctx context.Context, candidate scanner.Candidate, archive string, plate *dataface.CrystalPlate) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	result := Result{Directory: candidate.Path, Archive: archive}
	logger := i.logger.With(
		logging.String(logging.FieldBarcode, candidate.Barcode),
		logging.String(logging.FieldDirectory, candidate.Path),
	)

	entries, err := os.ReadDir(candidate.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result
		}
		result.Failed++
		logging.WarnWithContext(logger, "read plate directory failed", "directory_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the plate directory"),
		)
		return result
	}

	attempted := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			logger.Info("directory interrupted by shutdown",
				logging.Int("files_attempted", attempted),
				logging.Int("files_total", len(entries)),
			)
			return result
		}
		attempted++
		if entry.Type().IsRegular() {
			i.processFile(ctx, logger, candidate, archive, plate, entry, &result)
			continue
		}
		i.processNested(logger, candidate, archive, entry, &result)
	}

	removed, err := fileutil.RemoveIfEmpty(candidate.Path)
	if err != nil {
		logging.WarnWithContext(logger, "remove plate directory failed", "directory_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "directory is retried on the next scan pass"),
		)
	}
	result.Removed = removed
	return result
}

func (i *Ingestor) processFile(
	ctx context.Context,
	logger *slog.Logger,
	candidate scanner.Candidate,
	archive string,
	plate *dataface.CrystalPlate,
	entry fs.DirEntry,
	result *Result,
) {
	name := entry.Name()
	src := filepath.Join(candidate.Path, name)
	dst := filepath.Join(archive, name)
	fileLogger := logger.With(logging.String(logging.FieldFilename, src))

	info, err := entry.Info()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		result.Failed++
		logging.WarnWithContext(fileLogger, "stat image failed", "file_stat_failed", logging.Error(err))
		return
	}
	if i.settle > 0 && i.now().Sub(info.ModTime()) < i.settle {
		result.Unsettled++
		fileLogger.Debug("file not settled yet", logging.Duration("age", i.now().Sub(info.ModTime())))
		return
	}

	if plate != nil && i.isImage(name) {
		inserted, err := i.store.RegisterCrystalWell(ctx, dataface.CrystalWell{
			Filename:         dst,
			Directory:        candidate.Path,
			CrystalPlateUUID: plate.UUID,
			Position:         ParsePosition(candidate.Barcode, name),
			DiscoveredAt:     i.now().UTC(),
		})
		if err != nil {
			result.Failed++
			logging.WarnWithContext(fileLogger, "register crystal well failed", "well_register_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the metadata store is reachable"),
				logging.String(logging.FieldImpact, "image stays in place and is retried on the next scan pass"),
			)
			return
		}
		if inserted {
			result.Registered++
		} else {
			result.AlreadyRegistered++
			fileLogger.Debug("filename already registered, retrying move")
		}
	}

	if err := fileutil.MoveFile(src, dst); err != nil {
		result.Failed++
		hint := "check free space and permissions on the archive directory"
		if errors.Is(err, fileutil.ErrTargetExists) {
			hint = "a different file with the same name is already archived; resolve the conflict manually"
		}
		logging.WarnWithContext(fileLogger, "move image failed", "file_move_failed",
			logging.Error(err),
			logging.String("target", dst),
			logging.String(logging.FieldErrorHint, hint),
		)
		return
	}

	if plate == nil {
		result.Held++
	} else {
		result.Moved++
	}
	fileLogger.Debug("file archived", logging.String("target", dst))
}

// processNested relocates a subdirectory or symlink into the archive so the
// plate directory can become empty. Nothing under it is registered.
func (i *Ingestor) processNested(
	logger *slog.Logger,
	candidate scanner.Candidate,
	archive string,
	entry fs.DirEntry,
	result *Result,
) {
	src := filepath.Join(candidate.Path, entry.Name())
	dst := filepath.Join(archive, entry.Name())
	entryLogger := logger.With(logging.String(logging.FieldFilename, src))

	if !entry.IsDir() && entry.Type()&fs.ModeSymlink == 0 {
		result.Failed++
		logging.WarnWithContext(entryLogger, "unsupported entry in plate directory", "entry_unsupported",
			logging.String("type", entry.Type().String()),
			logging.String(logging.FieldErrorHint, "remove the entry so the plate directory can be archived"),
			logging.String(logging.FieldImpact, "plate directory stays in the scrapable root"),
		)
		return
	}

	info, err := entry.Info()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		result.Failed++
		logging.WarnWithContext(entryLogger, "stat nested entry failed", "file_stat_failed", logging.Error(err))
		return
	}
	if i.settle > 0 && i.now().Sub(info.ModTime()) < i.settle {
		result.Unsettled++
		return
	}

	if err := fileutil.MoveTree(src, dst); err != nil {
		result.Failed++
		hint := "check free space and permissions on the archive directory"
		if errors.Is(err, fileutil.ErrTargetExists) {
			hint = "a different file with the same name is already archived; resolve the conflict manually"
		}
		logging.WarnWithContext(entryLogger, "move nested entry failed", "nested_move_failed",
			logging.Error(err),
			logging.String("target", dst),
			logging.String(logging.FieldErrorHint, hint),
		)
		return
	}
	result.Nested++
	entryLogger.Debug("nested entry archived", logging.String("target", dst))
}

func (i *Ingestor) isImage(name string) bool {
	_, ok := i.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// String renders the result for log lines.
func (r Result) String() string {
	return fmt.Sprintf("registered=%d already=%d moved=%d held=%d unsettled=%d failed=%d nested=%d removed=%t",
		r.Registered, r.AlreadyRegistered, r.Moved, r.Held, r.Unsettled, r.Failed, r.Nested, r.Removed)
}

// ParsePosition extracts the well position from an image name such as
// 98ab_A01_1.jpg. It returns "" when the name carries no position.
func ParsePosition(barcode, filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if barcode != "" {
		trimmed, ok := strings.CutPrefix(stem, barcode+"_")
		if !ok {
			return ""
		}
		stem = trimmed
	} else if idx := strings.Index(stem, "_"); idx >= 0 {
		stem = stem[idx+1:]
	}
	match := positionPattern.FindStringSubmatch(stem)
	if match == nil {
		return ""
	}
	return strings.ToUpper(match[1]) + "_" + match[2]
}
