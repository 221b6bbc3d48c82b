package dataface

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rockingester/internal/config"
)

// Store is the metadata dataface used by the resolver, ingestor and operators.
type Store interface {
	// UpsertCrystalPlates inserts plates, updating plate id and visit for barcodes already present.
	UpsertCrystalPlates(ctx context.Context, plates []CrystalPlate) error
	// FetchCrystalPlate returns the plate with the barcode, or nil when none exists.
	FetchCrystalPlate(ctx context.Context, barcode string) (*CrystalPlate, error)
	// RegisterCrystalWell inserts the well unless its filename is already recorded.
	// The boolean reports whether a new row was written.
	RegisterCrystalWell(ctx context.Context, well CrystalWell) (bool, error)
	// FetchCrystalWellsFilenames returns every registered filename in ascending order.
	FetchCrystalWellsFilenames(ctx context.Context) ([]string, error)
	// CountCrystalWells returns the number of registered wells.
	CountCrystalWells(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open dataface: config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "", config.BackendSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.Store.PostgresDSN, cfg.Store.MaxConns)
	default:
		return nil, fmt.Errorf("open dataface: unsupported backend %q", cfg.Store.Backend)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func preparePlate(plate CrystalPlate, now time.Time) (CrystalPlate, error) {
	plate.Barcode = strings.TrimSpace(plate.Barcode)
	if plate.Barcode == "" {
		return plate, fmt.Errorf("%w: crystal plate barcode is required", ErrInvalidRecord)
	}
	if plate.UUID == "" {
		plate.UUID = uuid.NewString()
	}
	if plate.CreatedAt.IsZero() {
		plate.CreatedAt = now
	}
	return plate, nil
}

func prepareWell(well CrystalWell, now time.Time) (CrystalWell, error) {
	if strings.TrimSpace(well.Filename) == "" {
		return well, fmt.Errorf("%w: crystal well filename is required", ErrInvalidRecord)
	}
	if well.UUID == "" {
		well.UUID = uuid.NewString()
	}
	if well.DiscoveredAt.IsZero() {
		well.DiscoveredAt = now
	}
	if well.CreatedAt.IsZero() {
		well.CreatedAt = now
	}
	return well, nil
}
