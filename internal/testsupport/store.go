package testsupport

import (
	"context"
	"testing"

	"rockingester/internal/config"
	"rockingester/internal/dataface"
)

// MustOpenStore opens the SQLite dataface for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *dataface.SQLiteStore {
	t.Helper()

	store, err := dataface.OpenSQLite(context.Background(), cfg.Store.SQLitePath)
	if err != nil {
		t.Fatalf("dataface.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustUpsertPlates registers plates with the given barcodes.
func MustUpsertPlates(t testing.TB, store dataface.Store, barcodes ...string) {
	t.Helper()

	plates := make([]dataface.CrystalPlate, 0, len(barcodes))
	for i, barcode := range barcodes {
		plates = append(plates, dataface.CrystalPlate{
			Barcode:            barcode,
			FormulatrixPlateID: int64(1000 + i),
			Visit:              "cm00001-1",
		})
	}
	if err := store.UpsertCrystalPlates(context.Background(), plates); err != nil {
		t.Fatalf("UpsertCrystalPlates: %v", err)
	}
}

// MustFilenames returns the registered well filenames.
func MustFilenames(t testing.TB, store dataface.Store) []string {
	t.Helper()

	names, err := store.FetchCrystalWellsFilenames(context.Background())
	if err != nil {
		t.Fatalf("FetchCrystalWellsFilenames: %v", err)
	}
	return names
}
