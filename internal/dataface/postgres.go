package dataface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists metadata in a shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

const defaultPostgresMaxConns = 4

// OpenPostgres connects a pool to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("open postgres: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = defaultPostgresMaxConns
	}
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	var tableExists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_version')`,
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if !tableExists {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		for _, stmt := range splitStatements(postgresSchemaSQL) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.pool.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	return checkSchemaVersion(version)
}

// UpsertCrystalPlates inserts plates in one batch, refreshing plate id and visit by barcode.
func (s *PostgresStore) UpsertCrystalPlates(ctx context.Context, plates []CrystalPlate) error {
	ctx = ensureContext(ctx)
	if len(plates) == 0 {
		return nil
	}
	now := s.now().UTC()
	batch := &pgx.Batch{}
	for _, plate := range plates {
		p, err := preparePlate(plate, now)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO crystal_plates
			(uuid, barcode, formulatrix_plate_id, visit, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (barcode) DO UPDATE SET
				formulatrix_plate_id = EXCLUDED.formulatrix_plate_id,
				visit = EXCLUDED.visit`,
			p.UUID, p.Barcode, p.FormulatrixPlateID, p.Visit, p.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert crystal plates: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("upsert crystal plates: %w", err)
	}
	return nil
}

// FetchCrystalPlate returns the plate with barcode, or nil when absent.
func (s *PostgresStore) FetchCrystalPlate(ctx context.Context, barcode string) (*CrystalPlate, error) {
	ctx = ensureContext(ctx)
	var plate CrystalPlate
	err := s.pool.QueryRow(ctx,
		`SELECT uuid, barcode, formulatrix_plate_id, visit, created_at FROM crystal_plates WHERE barcode = $1`,
		strings.TrimSpace(barcode),
	).Scan(&plate.UUID, &plate.Barcode, &plate.FormulatrixPlateID, &plate.Visit, &plate.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch crystal plate %q: %w", barcode, err)
	}
	return &plate, nil
}

// RegisterCrystalWell inserts the well unless its filename already exists.
func (s *PostgresStore) RegisterCrystalWell(ctx context.Context, well CrystalWell) (bool, error) {
	ctx = ensureContext(ctx)
	prepared, err := prepareWell(well, s.now().UTC())
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO crystal_wells
		(uuid, filename, directory, crystal_plate_uuid, position, discovered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (filename) DO NOTHING`,
		prepared.UUID,
		prepared.Filename,
		prepared.Directory,
		prepared.CrystalPlateUUID,
		prepared.Position,
		prepared.DiscoveredAt,
		prepared.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("register crystal well %q: %w", prepared.Filename, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FetchCrystalWellsFilenames lists registered filenames in ascending order.
func (s *PostgresStore) FetchCrystalWellsFilenames(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.pool.Query(ctx, `SELECT filename FROM crystal_wells ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("fetch crystal well filenames: %w", err)
	}
	filenames, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("fetch crystal well filenames: %w", err)
	}
	return filenames, nil
}

// CountCrystalWells returns the number of registered wells.
func (s *PostgresStore) CountCrystalWells(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ensureContext(ctx), `SELECT COUNT(1) FROM crystal_wells`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count crystal wells: %w", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is closed")
	}
	return s.pool.Ping(ensureContext(ctx))
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
