package dataface

import (
	_ "embed"
	"fmt"
)

//go:embed sqlite_schema.sql
var sqliteSchemaSQL string

//go:embed postgres_schema.sql
var postgresSchemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Operators will need to migrate or recreate the database after schema changes.
const schemaVersion = 1

func checkSchemaVersion(version int) error {
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}
