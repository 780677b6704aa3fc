package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/af-corp/chat-gateway/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "up, down, status, or force")
	forceVersion := flag.Int("version", -1, "version to record with -direction force (clears the dirty flag)")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	configDir := flag.String("config", "configs", "read database settings from gateway.yaml in this directory when no URL is given")
	flag.Parse()

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" && *configDir != "" {
		cfg := config.DefaultConfig()
		if err := config.LoadFile(filepath.Join(*configDir, "gateway.yaml"), cfg); err == nil && cfg.Database.Enabled() {
			dsn = cfg.Database.DSN()
		}
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		user := envOrDefault("DB_USER", "chat")
		pass := envOrDefault("DB_PASSWORD", "chat-dev")
		name := envOrDefault("DB_NAME", "chat")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
	}

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
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
	case "status":
	case "force":
		if *forceVersion < 0 {
			log.Fatal("-direction force needs -version")
		}
		err = m.Force(*forceVersion)
	default:
		log.Fatalf("invalid direction: %s (use up, down, status or force)", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("auth_tokens schema: no migrations applied")
	case err != nil:
		log.Fatalf("read version: %v", err)
	default:
		fmt.Printf("auth_tokens schema at version %d (dirty: %v) after %s\n", v, dirty, *direction)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
