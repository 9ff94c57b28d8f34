package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"scope-chat/config"
	"scope-chat/internal/repository"
	"scope-chat/pkg/database"
)

const usage = `
Scope Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Apply all pending migrations
  down        Roll back all applied migrations
  status      Show connection status and applied migrations
  seed-dev    Seed with development chats and messages

Flags:
  -migrations string   Path to migrations directory (default "migrations")

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go seed-dev
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	ctx := context.Background()

	cfg := config.LoadConfig()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx, db, *migrationsDir)
	case "down":
		runMigrationsDown(ctx, db, *migrationsDir)
	case "status":
		showStatus(ctx, db, *migrationsDir)
	case "seed-dev":
		runSeedDevelopment(ctx, db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, db *sql.DB, dir string) {
	log.Println("🚀 Running migrations UP...")

	applied, err := database.MigrateUp(ctx, db, dir)
	for _, name := range applied {
		log.Printf("   applied %s", name)
	}
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(ctx context.Context, db *sql.DB, dir string) {
	log.Println("⬇️  Rolling back migrations...")

	reverted, err := database.MigrateDown(ctx, db, dir)
	for _, name := range reverted {
		log.Printf("   reverted %s", name)
	}
	if err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(ctx context.Context, db *sql.DB, dir string) {
	log.Println("🔍 Checking database status...")

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	migrations, err := database.Status(ctx, db, dir)
	if err != nil {
		log.Fatalf("❌ Failed to read migrations: %v", err)
	}
	for _, m := range migrations {
		mark := "❌"
		if m.Applied {
			mark = "✅"
		}
		log.Printf("%s Migration %s", mark, m.Name)
	}

	tables := []string{"chats", "chat_members", "chat_messages", "message_reactions"}
	for _, table := range tables {
		exists, err := database.TableExists(ctx, db, table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.TableCount(ctx, db, table)
			log.Printf("✅ Table %-20s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-20s does not exist", table)
		}
	}
}

func runSeedDevelopment(ctx context.Context, db *sql.DB) {
	log.Println("🌱 Seeding database (development mode)...")

	result, err := database.SeedDevelopment(ctx, repository.NewStore(db), database.DefaultSeedConfig())
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	log.Printf("   - Project chat: %d", result.ProjectChat.ID)
	log.Printf("   - Direct chats: %d", len(result.DirectChats))
	log.Printf("   - Messages: %d", len(result.Messages))
	log.Println("✅ Development seeding completed!")
}
