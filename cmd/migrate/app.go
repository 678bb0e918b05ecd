package migrate

import (
	"context"

	"ride-settlement/internal/general/config"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/postgres"
)

// Run applies the schema and, when tariffsPath is set, upserts the tariffs it lists.
func Run(ctx context.Context, configPath, tariffsPath string) error {
	logger := logger.New("migrate")
	ctx = logger.WithRequestID(ctx, "migrate-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Error(ctx, "migration_failed", "Failed to apply schema", err, nil)
		return err
	}
	logger.Info(ctx, "migration_applied", "Schema is up to date", nil)

	if tariffsPath == "" {
		return nil
	}

	tariffs, err := config.LoadTariffs(tariffsPath)
	if err != nil {
		logger.Error(ctx, "tariff_seed_invalid", "Failed to read tariff file", err, map[string]any{"path": tariffsPath})
		return err
	}

	repo := postgres.NewTariffRepo()
	err = postgres.NewUnitOfWork(pool).WithinTx(ctx, func(ctx context.Context) error {
		for _, t := range tariffs {
			if err := repo.Upsert(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, "tariff_seed_failed", "Failed to upsert tariffs", err, nil)
		return err
	}

	logger.Info(ctx, "tariffs_seeded", "Tariffs upserted", map[string]any{"count": len(tariffs)})
	return nil
}
