package main

import (
	"context"

	"github.com/GolferGeek/sync-focus/internal/config"
	"github.com/GolferGeek/sync-focus/internal/db"
	"github.com/GolferGeek/sync-focus/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	ctx := context.Background()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if err := db.RunMigrations(ctx, database); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	version, err := db.MigrationVersion(ctx, database)
	if err != nil {
		logger.Fatal().Err(err).Msg("read migration version")
	}
	logger.Info().Int64("version", version).Str("db_path", cfg.DBPath).Msg("migrations applied successfully")
}
