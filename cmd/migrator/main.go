package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"magiclink/internal/config"
	"magiclink/internal/domain/models"
	"magiclink/internal/lib/migrator"
	"magiclink/internal/storage/mongodb"
	"magiclink/internal/storage/postgres"
	"magiclink/internal/storage/sqlite"
	"magiclink/migrations"
)

type pendingAccountCreator interface {
	CreatePendingAccount(ctx context.Context, pending models.PendingAccount) (string, error)
}

func main() {
	var configPath, seedEmail string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&seedEmail, "seed", "", "create a pending account for this email and print its activation ticket")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.LoadConfig(configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var creator pendingAccountCreator

	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}

		version, err := migrator.Up(migrations.SQLite, "sqlite", migrator.SQLiteURL(cfg.Storage.Path))
		if err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		log.Printf("sqlite migrations applied, version %d", version)

		if seedEmail != "" {
			st, err := sqlite.New(cfg.Storage.Path)
			if err != nil {
				log.Fatalf("failed to open sqlite: %v", err)
			}
			defer st.Close()
			creator = st
		}

	case config.StoragePostgres:
		version, err := migrator.Up(migrations.Postgres, "postgres", migrator.PostgresURL(cfg.Storage.PostgresDSN))
		if err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		log.Printf("postgres migrations applied, version %d", version)

		if seedEmail != "" {
			st, err := postgres.New(ctx, cfg.Storage.PostgresDSN)
			if err != nil {
				log.Fatalf("failed to connect to postgres: %v", err)
			}
			defer st.Close()
			creator = st
		}

	case config.StorageMongoDB:
		log.Println("Connecting to MongoDB...")

		st, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			log.Fatalf("failed to connect to mongodb: %v", err)
		}
		defer st.Close(ctx)

		log.Println("MongoDB connected, indexes created successfully")
		creator = st

	default:
		log.Fatalf("unknown storage driver: %q", cfg.Storage.Driver)
	}

	if seedEmail != "" {
		ticket := uuid.NewString()
		accountID, err := creator.CreatePendingAccount(ctx, models.PendingAccount{
			Email:           seedEmail,
			Ticket:          ticket,
			TicketExpiresAt: time.Now().Add(cfg.TicketTTL),
		})
		if err != nil {
			log.Fatalf("failed to seed account: %v", err)
		}
		log.Printf("pending account %s created for %s", accountID, seedEmail)
		fmt.Printf("/auth/magic-link?action=register&token=%s\n", ticket)
	}

	fmt.Println("Database initialization completed successfully")
}
