// Command migrate applies the grounding-results schema migrations. The
// database DSN is resolved in order: -db-url flag, DATABASE_URL, then the
// database section of the gateway config file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/probelab/groundcheck/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides env and config)")
	configPath := flag.String("config", "configs/gateway.yaml", "gateway config file for the database fallback")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	dsn, err := resolveDSN(*dbURL, *configPath)
	if err != nil {
		logger.Error("resolving database DSN", "error", err)
		os.Exit(1)
	}

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		logger.Error("creating migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		logger.Error("invalid direction, use 'up' or 'down'", "direction", *direction)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}

	v, dirty, _ := m.Version()
	logger.Info("migration complete", "direction", *direction, "version", v, "dirty", dirty)
}

// resolveDSN picks the first configured source: explicit flag, the
// DATABASE_URL environment variable, then the gateway config file. A missing
// config file is only an error when nothing else supplied a DSN.
func resolveDSN(flagDSN, configPath string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	if env := os.Getenv("DATABASE_URL"); env != "" {
		return env, nil
	}

	cfg := config.DefaultConfig()
	if err := config.LoadFile(configPath, cfg); err != nil {
		return "", fmt.Errorf("load %s: %w", configPath, err)
	}
	return cfg.Database.DSN(), nil
}
