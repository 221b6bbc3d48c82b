package dataface

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists metadata in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	sqliteTimeLayout = time.RFC3339Nano
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open sqlite db: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	return checkSchemaVersion(version)
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// UpsertCrystalPlates inserts plates or refreshes plate id and visit by barcode.
func (s *SQLiteStore) UpsertCrystalPlates(ctx context.Context, plates []CrystalPlate) error {
	ctx = ensureContext(ctx)
	if len(plates) == 0 {
		return nil
	}
	now := s.now().UTC()
	prepared := make([]CrystalPlate, 0, len(plates))
	for _, plate := range plates {
		p, err := preparePlate(plate, now)
		if err != nil {
			return err
		}
		prepared = append(prepared, p)
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin upsert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, p := range prepared {
			if _, err := tx.ExecContext(ctx, `INSERT INTO crystal_plates
				(uuid, barcode, formulatrix_plate_id, visit, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(barcode) DO UPDATE SET
					formulatrix_plate_id = excluded.formulatrix_plate_id,
					visit = excluded.visit`,
				p.UUID, p.Barcode, p.FormulatrixPlateID, p.Visit, p.CreatedAt.UTC().Format(sqliteTimeLayout),
			); err != nil {
				return fmt.Errorf("upsert crystal plate %q: %w", p.Barcode, err)
			}
		}
		return tx.Commit()
	})
}

// FetchCrystalPlate returns the plate with barcode, or nil when absent.
func (s *SQLiteStore) FetchCrystalPlate(ctx context.Context, barcode string) (*CrystalPlate, error) {
	ctx = ensureContext(ctx)
	var (
		plate     CrystalPlate
		createdAt string
		found     bool
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT uuid, barcode, formulatrix_plate_id, visit, created_at FROM crystal_plates WHERE barcode = ?`,
			strings.TrimSpace(barcode),
		)
		scanErr := row.Scan(&plate.UUID, &plate.Barcode, &plate.FormulatrixPlateID, &plate.Visit, &createdAt)
		if errors.Is(scanErr, sql.ErrNoRows) {
			found = false
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch crystal plate %q: %w", barcode, err)
	}
	if !found {
		return nil, nil
	}
	plate.CreatedAt = parseTimestamp(createdAt)
	return &plate, nil
}

// RegisterCrystalWell inserts the well unless its filename already exists.
func (s *SQLiteStore) RegisterCrystalWell(ctx context.Context, well CrystalWell) (bool, error) {
	ctx = ensureContext(ctx)
	prepared, err := prepareWell(well, s.now().UTC())
	if err != nil {
		return false, err
	}

	var affected int64
	err = retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `INSERT INTO crystal_wells
			(uuid, filename, directory, crystal_plate_uuid, position, discovered_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(filename) DO NOTHING`,
			prepared.UUID,
			prepared.Filename,
			prepared.Directory,
			prepared.CrystalPlateUUID,
			prepared.Position,
			prepared.DiscoveredAt.UTC().Format(sqliteTimeLayout),
			prepared.CreatedAt.UTC().Format(sqliteTimeLayout),
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("register crystal well %q: %w", prepared.Filename, err)
	}
	return affected > 0, nil
}

// FetchCrystalWellsFilenames lists registered filenames in ascending order.
func (s *SQLiteStore) FetchCrystalWellsFilenames(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	var filenames []string
	err := retryOnBusy(ctx, func() error {
		filenames = filenames[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT filename FROM crystal_wells ORDER BY filename`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			filenames = append(filenames, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch crystal well filenames: %w", err)
	}
	return filenames, nil
}

// CountCrystalWells returns the number of registered wells.
func (s *SQLiteStore) CountCrystalWells(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM crystal_wells`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count crystal wells: %w", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store is closed")
	}
	return s.db.PingContext(ensureContext(ctx))
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(sqliteTimeLayout, raw); err == nil {
		return ts
	}
	return time.Time{}
}
