package billing

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for every billing table
func Schema() string {
	return schemaSQL
}

// EnsureSchema creates the billing tables if they do not exist. It is idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create billing schema: %w", err)
	}
	return nil
}
