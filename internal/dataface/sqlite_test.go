package dataface_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rockingester/internal/config"
	"rockingester/internal/dataface"
)

func openTestStore(t *testing.T) (*dataface.SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xchembku.db")
	store, err := dataface.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestUpsertAndFetchCrystalPlate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if err := store.UpsertCrystalPlates(ctx, []dataface.CrystalPlate{
		{Barcode: "98ab", FormulatrixPlateID: 10, Visit: "cm00001-1"},
	}); err != nil {
		t.Fatalf("UpsertCrystalPlates failed: %v", err)
	}

	plate, err := store.FetchCrystalPlate(ctx, "98ab")
	if err != nil {
		t.Fatalf("FetchCrystalPlate failed: %v", err)
	}
	if plate == nil {
		t.Fatal("expected plate to be found")
	}
	if plate.UUID == "" || plate.FormulatrixPlateID != 10 || plate.Visit != "cm00001-1" {
		t.Fatalf("unexpected plate: %#v", plate)
	}
	if plate.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be populated")
	}

	if err := store.UpsertCrystalPlates(ctx, []dataface.CrystalPlate{
		{Barcode: "98ab", FormulatrixPlateID: 11, Visit: "cm00001-2"},
	}); err != nil {
		t.Fatalf("second UpsertCrystalPlates failed: %v", err)
	}
	updated, err := store.FetchCrystalPlate(ctx, "98ab")
	if err != nil {
		t.Fatalf("FetchCrystalPlate failed: %v", err)
	}
	if updated.UUID != plate.UUID {
		t.Fatalf("expected uuid to be stable across upserts, got %q want %q", updated.UUID, plate.UUID)
	}
	if updated.FormulatrixPlateID != 11 || updated.Visit != "cm00001-2" {
		t.Fatalf("expected upsert to refresh plate fields, got %#v", updated)
	}
}

func TestFetchCrystalPlateMissingReturnsNil(t *testing.T) {
	store, _ := openTestStore(t)
	plate, err := store.FetchCrystalPlate(context.Background(), "98ac")
	if err != nil {
		t.Fatalf("FetchCrystalPlate failed: %v", err)
	}
	if plate != nil {
		t.Fatalf("expected nil plate, got %#v", plate)
	}
}

func TestUpsertRejectsEmptyBarcode(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.UpsertCrystalPlates(context.Background(), []dataface.CrystalPlate{{Barcode: "  "}})
	if !errors.Is(err, dataface.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestRegisterCrystalWellIsInsertIfAbsent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	well := dataface.CrystalWell{Filename: "/archive/98ab/98ab_A01_1.jpg", Directory: "/images/98ab", Position: "A01_1"}
	inserted, err := store.RegisterCrystalWell(ctx, well)
	if err != nil {
		t.Fatalf("RegisterCrystalWell failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first registration to insert")
	}

	inserted, err = store.RegisterCrystalWell(ctx, well)
	if err != nil {
		t.Fatalf("second RegisterCrystalWell failed: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate filename to be ignored")
	}

	count, err := store.CountCrystalWells(ctx)
	if err != nil {
		t.Fatalf("CountCrystalWells failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 well, got %d", count)
	}
}

func TestRegisterCrystalWellConcurrentDuplicates(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.RegisterCrystalWell(ctx, dataface.CrystalWell{Filename: "/archive/98ab/98ab_B02_1.jpg"})
			if err != nil {
				t.Errorf("RegisterCrystalWell failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Fatalf("expected exactly one insert, got %d", inserted)
	}
}

func TestFetchCrystalWellsFilenamesSorted(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"/archive/c.jpg", "/archive/a.jpg", "/archive/b.jpg"} {
		if _, err := store.RegisterCrystalWell(ctx, dataface.CrystalWell{Filename: name}); err != nil {
			t.Fatalf("RegisterCrystalWell(%s) failed: %v", name, err)
		}
	}
	names, err := store.FetchCrystalWellsFilenames(ctx)
	if err != nil {
		t.Fatalf("FetchCrystalWellsFilenames failed: %v", err)
	}
	want := []string{"/archive/a.jpg", "/archive/b.jpg", "/archive/c.jpg"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("filenames mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterCrystalWellRequiresFilename(t *testing.T) {
	store, _ := openTestStore(t)
	if _, err := store.RegisterCrystalWell(context.Background(), dataface.CrystalWell{}); !errors.Is(err, dataface.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestReopenPreservesRecords(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	if _, err := store.RegisterCrystalWell(ctx, dataface.CrystalWell{Filename: "/archive/98ab/1.jpg"}); err != nil {
		t.Fatalf("RegisterCrystalWell failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := dataface.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	inserted, err := reopened.RegisterCrystalWell(ctx, dataface.CrystalWell{Filename: "/archive/98ab/1.jpg"})
	if err != nil {
		t.Fatalf("RegisterCrystalWell after reopen failed: %v", err)
	}
	if inserted {
		t.Fatal("expected filename registered before reopen to be recognised")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	_ = db.Close()

	if _, err := dataface.OpenSQLite(context.Background(), path); !errors.Is(err, dataface.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "db", "xchembku.db")

	store, err := dataface.Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*dataface.SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	cfg.Store.Backend = "mysql"
	if _, err := dataface.Open(context.Background(), &cfg); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}
