// Command migrate creates the database schema and optionally seeds the
// token pool from a newline-separated file.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/huhumeme2002/Webtokenv2/webtoken"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
	"github.com/huhumeme2002/Webtokenv2/webtoken/logger"
	"github.com/huhumeme2002/Webtokenv2/webtoken/utils"
)

func main() {
	customHandler := logger.NewHandler("WebToken-Migrate")
	slog.SetDefault(slog.New(customHandler))

	configPath := flag.String("config", "config.toml", "path to config")
	seedPath := flag.String("seed", "", "optional file of token values to ingest, one per line")
	flag.Parse()

	cfg, err := webtoken.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.CreateSchema(ctx, db); err != nil {
		slog.Error("Failed to create schema", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Schema up to date")

	if *seedPath == "" {
		return
	}

	raw, err := os.ReadFile(*seedPath)
	if err != nil {
		slog.Error("Failed to read seed file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	values := utils.ParseTokenLines(string(raw))
	valid := values[:0]
	for _, v := range values {
		if utils.ValidTokenFormat(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		slog.Warn("Seed file contained no valid token values")
		return
	}

	tokens := repositories.NewTokenRepository(db.BunDB())
	result, err := tokens.BulkInsert(ctx, valid)
	if err != nil {
		slog.Error("Seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Seed complete",
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates))
}
