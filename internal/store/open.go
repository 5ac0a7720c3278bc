package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mvbarbosa/docetl/internal/common"
)

// Open returns the store configured by cfg.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return OpenPostgres(ctx, cfg, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return nil, common.NewAppError("DB_CONFIG",
			fmt.Sprintf("unknown database type %q", cfg.Type), common.ErrInvalidInput)
	}
}
