package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/db"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/pressly/goose/v3"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|status|reset]")
	}

	command := os.Args[1]

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Read(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	conn, dialect, err := open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	provider, err := goose.NewProvider(dialect, conn, nil)
	if err != nil {
		log.Fatalf("Failed to create migration provider: %v", err)
	}

	ctx := context.Background()
	fmt.Printf("Running migrations against %s store\n", cfg.Store.Driver)

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		fmt.Printf("Migrations applied successfully (%d)\n", len(results))
	case "down":
		if _, err := provider.Down(ctx); err != nil {
			log.Fatalf("Failed to rollback migration: %v", err)
		}
		fmt.Println("Migration rollback successful")
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = "applied at " + s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%05d %-40s %s\n", s.Source.Version, s.Source.Path, applied)
		}
	case "reset":
		if _, err := provider.DownTo(ctx, 0); err != nil {
			log.Fatalf("Failed to reset migrations: %v", err)
		}
		fmt.Println("All migrations have been rolled back")
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func open(cfg *config.Config) (*sql.DB, goose.Dialect, error) {
	if cfg.Store.Driver == "postgres" {
		conn, err := db.OpenPostgres(cfg.GetDSN())
		return conn, goose.DialectPostgres, err
	}
	conn, err := db.OpenSQLite(cfg.Store.Path)
	return conn, goose.DialectSQLite3, err
}
