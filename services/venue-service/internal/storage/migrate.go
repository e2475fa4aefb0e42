package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/md-rashed-zaman/courtdesk/libs/db"
)

//go:embed schema.sql
var schema string

// Migrate applies the embedded schema. Every statement is idempotent so it is
// safe on each start.
func Migrate(ctx context.Context, pool *db.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
