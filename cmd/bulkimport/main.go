// cmd/bulkimport/main.go
//
// Script entry point for the fork-resolution bulk import: discovers the
// token owner's forks, resolves each to its upstream parent, and imports the
// parents' commits, pull requests and issues, best-effort.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"

	"github-mirror/internal/gh"
	"github-mirror/internal/store"
	"github-mirror/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Bulk import failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("ORG_MEMBER_PAGE_LIMIT", 1)

	token := viper.GetString("GITHUB_TOKEN")
	dbURL := viper.GetString("DB_URL")
	if token == "" || dbURL == "" {
		return fmt.Errorf("GITHUB_TOKEN and DB_URL are required")
	}

	ctx := context.Background()

	dbpool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()

	if err := runMigrations(dbURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// The import is attributed to the token's owner.
	client := gh.NewClient(token, logger)
	user, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve token owner: %w", err)
	}
	ownerID := strconv.FormatInt(user.ExternalID, 10)
	logger.Info("Importing fork activity", "owner", ownerID, "login", user.Login)

	st := store.New(dbpool)
	appSyncer := syncer.New(st, func(token string) syncer.Upstream {
		return gh.NewClient(token, logger)
	}, logger, viper.GetInt("ORG_MEMBER_PAGE_LIMIT"))

	return appSyncer.ImportForks(ctx, token, ownerID)
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
