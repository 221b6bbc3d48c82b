package collector_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"rockingester/internal/collector"
	"rockingester/internal/config"
	"rockingester/internal/dataface"
	"rockingester/internal/metrics"
	"rockingester/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyStore wraps a real store and can simulate an outage.
type flakyStore struct {
	*dataface.SQLiteStore
	pingErr  error
	fetchErr error
	fetches  atomic.Int32
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.SQLiteStore.Ping(ctx)
}

func (s *flakyStore) FetchCrystalPlate(ctx context.Context, barcode string) (*dataface.CrystalPlate, error) {
	s.fetches.Add(1)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.SQLiteStore.FetchCrystalPlate(ctx, barcode)
}

func newCollector(t *testing.T, cfg *config.Config, store collector.Store, opts ...collector.Option) *collector.Collector {
	t.Helper()
	c, err := collector.New(cfg, store, opts...)
	if err != nil {
		t.Fatalf("collector.New: %v", err)
	}
	return c
}

func TestRunPassIngestsMatchedAndHoldsUnmatched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUpsertPlates(t, store, "98ab")

	root := cfg.Collector.ScrapableRoot
	testsupport.MakePlateDir(t, root, testsupport.PlateDir98ab, "98ab_A01_1.jpg", "98ab_A02_1.jpg")
	testsupport.MakePlateDir(t, root, testsupport.PlateDir98ac, "98ac_A01_1.jpg", "98ac_A02_1.jpg", "98ac_A03_1.jpg")

	c := newCollector(t, cfg, store, collector.WithMetrics(metrics.New()))
	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if summary.Candidates != 2 || summary.Ingested != 1 || summary.Held != 1 || summary.DirectoriesRemoved != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.PassID == "" {
		t.Fatal("expected pass id")
	}

	names := testsupport.MustFilenames(t, store)
	if len(names) != 2 {
		t.Fatalf("expected 2 registered filenames, got %v", names)
	}
	if testsupport.Exists(t, filepath.Join(root, testsupport.PlateDir98ab)) {
		t.Fatal("expected 98ab directory to be gone from the scrapable root")
	}
	if !testsupport.Exists(t, filepath.Join(cfg.Collector.IngestedDirectory, testsupport.PlateDir98ab)) {
		t.Fatal("expected 98ab directory under the ingested archive")
	}

	if testsupport.Exists(t, filepath.Join(root, testsupport.PlateDir98ac)) {
		t.Fatal("expected 98ac directory to be gone from the scrapable root")
	}
	held := testsupport.ListFiles(t, filepath.Join(cfg.Collector.NobarcodeDirectory, testsupport.PlateDir98ac))
	if len(held) != 3 {
		t.Fatalf("expected 3 files in nobarcode, got %v", held)
	}
	for _, name := range names {
		if filepath.Dir(name) != filepath.Join(cfg.Collector.IngestedDirectory, testsupport.PlateDir98ab) {
			t.Fatalf("unexpected registered filename %q", name)
		}
	}
}

func TestRunPassIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUpsertPlates(t, store, "98ab")
	testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ab, "98ab_A01_1.jpg", "98ab_A02_1.jpg")

	c := newCollector(t, cfg, store)
	if _, err := c.RunPass(context.Background()); err != nil {
		t.Fatalf("first RunPass failed: %v", err)
	}
	archive := filepath.Join(cfg.Collector.IngestedDirectory, testsupport.PlateDir98ab)
	before := testsupport.ListFiles(t, archive)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second RunPass failed: %v", err)
	}
	if summary.Candidates != 0 || summary.Registered != 0 || summary.FilesMoved != 0 {
		t.Fatalf("expected second pass to be a no-op, got %+v", summary)
	}
	if names := testsupport.MustFilenames(t, store); len(names) != 2 {
		t.Fatalf("expected no duplicate records, got %v", names)
	}
	after := testsupport.ListFiles(t, archive)
	if len(after) != len(before) {
		t.Fatalf("archive changed between passes: %v -> %v", before, after)
	}
}

func TestRunPassPicksUpNewFilesInProcessedDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUpsertPlates(t, store, "98ab")
	root := cfg.Collector.ScrapableRoot
	testsupport.MakePlateDir(t, root, testsupport.PlateDir98ab, "98ab_A01_1.jpg")

	c := newCollector(t, cfg, store)
	if _, err := c.RunPass(context.Background()); err != nil {
		t.Fatalf("first RunPass failed: %v", err)
	}

	// The imager writes a second inspection later under the same directory name.
	testsupport.MakePlateDir(t, root, testsupport.PlateDir98ab, "98ab_A01_2.jpg")
	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second RunPass failed: %v", err)
	}
	if summary.Registered != 1 {
		t.Fatalf("expected the new image to be registered, got %+v", summary)
	}
	if names := testsupport.MustFilenames(t, store); len(names) != 2 {
		t.Fatalf("expected 2 filenames, got %v", names)
	}
}

func TestRestartResumesPartialIngestion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUpsertPlates(t, store, "98ab")
	dir := testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ab,
		"98ab_A01_1.jpg", "98ab_A02_1.jpg", "98ab_A03_1.jpg")
	archive := filepath.Join(cfg.Collector.IngestedDirectory, testsupport.PlateDir98ab)

	// Simulate a run killed after registering A01 but before moving it.
	if _, err := store.RegisterCrystalWell(context.Background(), dataface.CrystalWell{
		Filename:  filepath.Join(archive, "98ab_A01_1.jpg"),
		Directory: dir,
	}); err != nil {
		t.Fatalf("seed registration: %v", err)
	}

	restarted := newCollector(t, cfg, store)
	summary, err := restarted.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if summary.Registered != 2 || summary.AlreadyRegistered != 1 || summary.DirectoriesRemoved != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if names := testsupport.MustFilenames(t, store); len(names) != 3 {
		t.Fatalf("expected 3 filenames without duplicates, got %v", names)
	}
	if got := testsupport.ListFiles(t, archive); len(got) != 3 {
		t.Fatalf("expected 3 archived files, got %v", got)
	}
}

func TestRunPassStoreUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.MustOpenStore(t, cfg)
	store := &flakyStore{SQLiteStore: base, pingErr: errors.New("connection refused")}
	dir := testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ac, "98ac_A01_1.jpg")

	c := newCollector(t, cfg, store)
	_, err := c.RunPass(context.Background())
	if !errors.Is(err, collector.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if store.fetches.Load() != 0 {
		t.Fatal("expected no lookups during an outage")
	}
	if got := testsupport.ListFiles(t, dir); len(got) != 1 {
		t.Fatalf("expected filesystem to be untouched, got %v", got)
	}
	last, ok := c.LastPass()
	if !ok || last.Err == "" {
		t.Fatalf("expected failed pass to be recorded, got %+v", last)
	}
}

func TestRunPassDefersOnLookupError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.MustOpenStore(t, cfg)
	store := &flakyStore{SQLiteStore: base, fetchErr: errors.New("query timeout")}
	dir := testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ac, "98ac_A01_1.jpg")

	summary, err := newCollector(t, cfg, store).RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if summary.Deferred != 1 || summary.Held != 0 {
		t.Fatalf("expected candidate to be deferred not held, got %+v", summary)
	}
	if got := testsupport.ListFiles(t, dir); len(got) != 1 {
		t.Fatalf("expected deferred directory to be untouched, got %v", got)
	}
}

func TestRunPassCanceledStartsNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUpsertPlates(t, store, "98ab")
	dir := testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ab, "98ab_A01_1.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCollector(t, cfg, store).RunPass(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := testsupport.ListFiles(t, dir); len(got) != 1 {
		t.Fatalf("expected directory to be untouched, got %v", got)
	}
}

func TestRunPassMissingRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := os.RemoveAll(cfg.Collector.ScrapableRoot); err != nil {
		t.Fatal(err)
	}
	if _, err := newCollector(t, cfg, store).RunPass(context.Background()); err == nil || errors.Is(err, collector.ErrStoreUnavailable) {
		t.Fatalf("expected scan error, got %v", err)
	}
}

func TestRunPassWithManyDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(4))
	store := testsupport.MustOpenStore(t, cfg)

	barcodes := []string{"a001", "a002", "a003", "a004", "a005", "a006"}
	testsupport.MustUpsertPlates(t, store, barcodes...)
	for _, bc := range barcodes {
		testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, bc+"_2023-04-06_RI1000-0276-3drop",
			bc+"_A01_1.jpg", bc+"_A02_1.jpg", bc+"_B01_1.jpg")
	}

	summary, err := newCollector(t, cfg, store).RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if summary.Ingested != len(barcodes) || summary.Registered != 3*len(barcodes) || summary.FilesFailed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if count, err := store.CountCrystalWells(context.Background()); err != nil || count != 3*len(barcodes) {
		t.Fatalf("CountCrystalWells = %d, %v", count, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUpsertPlates(t, store, "98ab")
	testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ab, "98ab_A01_1.jpg")

	c := newCollector(t, cfg, store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := c.LastPass(); ok {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("timed out waiting for first pass")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if status := c.Status(); status.Passes < 1 || status.LastPass == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
	if names := testsupport.MustFilenames(t, store); len(names) != 1 {
		t.Fatalf("expected 1 registered filename, got %v", names)
	}
}
