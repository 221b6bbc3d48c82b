package dataface

import "errors"

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")

	// ErrInvalidRecord is returned when a record is missing its business key.
	ErrInvalidRecord = errors.New("invalid record")
)
