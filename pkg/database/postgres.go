package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scope-chat/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DSN builds the pgx connection string from config.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection pool settings
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name        VARCHAR(255) PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one numbered schema step with an up and an optional down file.
type Migration struct {
	Name     string
	UpPath   string
	DownPath string
	Applied  bool
}

// LoadMigrations pairs NNN_name.up.sql / NNN_name.down.sql files in dir,
// sorted by name.
func LoadMigrations(dir string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byName := make(map[string]*Migration)
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".sql" {
			continue
		}
		base := strings.TrimSuffix(f.Name(), ".sql")
		var name string
		var up bool
		switch {
		case strings.HasSuffix(base, ".up"):
			name, up = strings.TrimSuffix(base, ".up"), true
		case strings.HasSuffix(base, ".down"):
			name = strings.TrimSuffix(base, ".down")
		default:
			continue
		}
		m, ok := byName[name]
		if !ok {
			m = &Migration{Name: name}
			byName[name] = m
		}
		if up {
			m.UpPath = filepath.Join(dir, f.Name())
		} else {
			m.DownPath = filepath.Join(dir, f.Name())
		}
	}

	migrations := make([]Migration, 0, len(byName))
	for _, m := range byName {
		if m.UpPath == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Name < migrations[j].Name })
	return migrations, nil
}

// Status returns every migration in dir with its applied flag set.
func Status(ctx context.Context, db *sql.DB, dir string) ([]Migration, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	for i := range migrations {
		migrations[i].Applied = applied[migrations[i].Name]
	}
	return migrations, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// MigrateUp applies every pending migration, each in its own transaction.
// It returns the names applied.
func MigrateUp(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	migrations, err := Status(ctx, db, dir)
	if err != nil {
		return nil, err
	}
	var done []string
	for _, m := range migrations {
		if m.Applied {
			continue
		}
		if err := execFile(ctx, db, m.UpPath, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name)
			return err
		}); err != nil {
			return done, fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
		}
		done = append(done, m.Name)
	}
	return done, nil
}

// MigrateDown rolls back applied migrations in reverse order.
func MigrateDown(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	migrations, err := Status(ctx, db, dir)
	if err != nil {
		return nil, err
	}
	var done []string
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if !m.Applied {
			continue
		}
		if m.DownPath == "" {
			return done, fmt.Errorf("migration %s has no down file", m.Name)
		}
		if err := execFile(ctx, db, m.DownPath, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE name = $1`, m.Name)
			return err
		}); err != nil {
			return done, fmt.Errorf("failed to roll back migration %s: %w", m.Name, err)
		}
		done = append(done, m.Name)
	}
	return done, nil
}

func execFile(ctx context.Context, db *sql.DB, path string, record func(*sql.Tx) error) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", path, err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)
    `, table).Scan(&exists)
	return exists, err
}

func TableCount(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&n)
	return n, err
}
