package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/internal/database"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mailstack <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  server    Start the application server")
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	// Setup the database
	db, err := database.InitMailstackDatabase(&database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	metaDB := db
	if cfg.DatabaseConfig.MemoryOnly {
		metaDB, err = database.OpenMemoryStore()
		if err != nil {
			log.Fatalf("In-memory metadata store initialization failed: %v", err)
		}
	}

	switch os.Args[1] {
	case "migrate":

		if err := repository.MigrateDB(db); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		// MemoryOnly's metaDB is an ephemeral store recreated on every
		// process start, so migrating it here would not persist; it is
		// migrated instead at server startup, right before the snapshot load.
		if !cfg.DatabaseConfig.MemoryOnly {
			if err := repository.MigrateMetaDB(metaDB); err != nil {
				log.Fatalf("Metadata store migration failed: %v", err)
			}
		}
		log.Println("Database migration completed successfully")

	case "server":

		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Println("MailStack starting up...")

		// In-memory mode has no persistent schema to migrate ahead of time:
		// the store is recreated empty on every process start, so it is
		// migrated and repopulated from the latest snapshot here rather than
		// through the "migrate" command.
		if cfg.DatabaseConfig.MemoryOnly {
			if err := repository.MigrateMetaDB(metaDB); err != nil {
				log.Fatalf("Metadata store migration failed: %v", err)
			}
			if err := database.LoadLatestSnapshot(metaDB, cfg.DatabaseConfig.SnapshotDir); err != nil {
				log.Fatalf("Metadata snapshot load failed: %v", err)
			}
		}

		server, err := server.NewServer(cfg, db, metaDB)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}

		err = server.Run()
		if err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}

		log.Println("Shutdown complete")

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Usage: mailstack <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  server    Start the application server")
		os.Exit(1)
	}
}
