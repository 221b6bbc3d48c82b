// Package resolver matches candidate directory barcodes against known plates.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rockingester/internal/dataface"
	"rockingester/internal/logging"
)

// ErrLookup wraps store failures. The candidate should be retried next pass
// rather than treated as unmatched.
var ErrLookup = errors.New("barcode lookup failed")

// PlateFetcher is the slice of the dataface the resolver needs.
type PlateFetcher interface {
	FetchCrystalPlate(ctx context.Context, barcode string) (*dataface.CrystalPlate, error)
}

// Resolution is the outcome of a barcode lookup.
type Resolution struct {
	Plate *dataface.CrystalPlate
	Found bool
}

// Resolver looks up plates by barcode.
type Resolver struct {
	store  PlateFetcher
	logger *slog.Logger
}

// New constructs a resolver backed by store.
func New(store PlateFetcher, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logging.NewComponentLogger(logger, "resolver")}
}

// Resolve returns the plate for barcode. A missing plate is not an error.
func (r *Resolver) Resolve(ctx context.Context, barcode string) (Resolution, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Resolution{}, nil
	}
	if r == nil || r.store == nil {
		return Resolution{}, fmt.Errorf("%w: resolver has no store", ErrLookup)
	}
	plate, err := r.store.FetchCrystalPlate(ctx, barcode)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	if plate == nil {
		r.logger.Debug("barcode not found", logging.String(logging.FieldBarcode, barcode))
		return Resolution{}, nil
	}
	return Resolution{Plate: plate, Found: true}, nil
}
