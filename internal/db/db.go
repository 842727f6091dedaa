package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

type Database struct {
	Conn    *sql.DB
	Dialect string
}

// NewDatabase opens and pings a postgres (pgx) or sqlite (modernc) database.
// Both drivers bind $N placeholders, so queries are shared across dialects.
func NewDatabase(dialect, dsn string) (*Database, error) {
	var driver string
	switch dialect {
	case Postgres:
		driver = "pgx"
	case SQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if dialect == SQLite {
		// SQLite is single-writer.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(25)
	}
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn, Dialect: dialect}, nil
}

func (d *Database) AutoMigrate() error {
	id := "BIGSERIAL PRIMARY KEY"
	stamp := "TIMESTAMPTZ"
	if d.Dialect == SQLite {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
		stamp = "TIMESTAMP"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            username VARCHAR(50) PRIMARY KEY,
            password VARCHAR(255) NOT NULL,
            created_at ` + stamp + ` DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS chat_groups (
            group_id VARCHAR(100) PRIMARY KEY,
            created_at ` + stamp + ` DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id ` + id + `,
            kind VARCHAR(20) NOT NULL,
            sender VARCHAR(50) NOT NULL,
            target VARCHAR(100) NOT NULL DEFAULT '',
            content TEXT NOT NULL DEFAULT '',
            frame TEXT NOT NULL,
            sent_at ` + stamp + ` NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS messages_kind_target ON messages (kind, target)`,
		`CREATE INDEX IF NOT EXISTS messages_kind_sender ON messages (kind, sender)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}
