package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
)

// CreateSchema creates the application tables and the indexes that back the
// allocation invariants. Safe to run repeatedly.
func CreateSchema(ctx context.Context, db *DB) error {
	tables := []interface{}{
		(*models.Key)(nil),
		(*models.Token)(nil),
		(*models.Delivery)(nil),
		(*models.Notice)(nil),
	}

	for _, table := range tables {
		if _, err := db.BunDB().NewCreateTable().
			Model(table).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", table, err)
		}
	}

	// The delivery uniqueness constraint is the correctness backstop for
	// per-key token reuse; the partial index keeps candidate selection fast.
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS delivery_key_token_idx ON deliveries (key_id, token_id)`,
		`CREATE INDEX IF NOT EXISTS available_tokens_idx ON token_pool (claim_count) WHERE claim_count < 2`,
		`CREATE INDEX IF NOT EXISTS token_pool_created_at_idx ON token_pool (created_at)`,
		`CREATE INDEX IF NOT EXISTS deliveries_key_id_idx ON deliveries (key_id)`,
	}

	for _, idx := range indexes {
		if _, err := db.ExecWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	slog.Info("Database schema ready",
		slog.String("type", "db"),
		slog.Int("tables", len(tables)))
	return nil
}
