package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool and applies the schema.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS support_rooms (
            id UUID PRIMARY KEY,
            customer_id TEXT NOT NULL,
            agent_id TEXT,
            status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
            last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		// at most one open room per customer
		`CREATE UNIQUE INDEX IF NOT EXISTS support_rooms_one_open_per_customer
            ON support_rooms (customer_id) WHERE status = 'open';`,
		`CREATE INDEX IF NOT EXISTS support_rooms_open_by_activity
            ON support_rooms (last_activity_at DESC) WHERE status = 'open';`,
		`CREATE TABLE IF NOT EXISTS support_messages (
            id UUID PRIMARY KEY,
            seq BIGSERIAL UNIQUE,
            room_id UUID NOT NULL REFERENCES support_rooms(id),
            sender_id TEXT NOT NULL,
            sender_role TEXT NOT NULL CHECK (sender_role IN ('customer', 'agent')),
            content TEXT NOT NULL CHECK (char_length(content) BETWEEN 1 AND 2000),
            attachments JSONB NOT NULL DEFAULT '[]',
            status TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'read')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            delivered_at TIMESTAMPTZ,
            read_at TIMESTAMPTZ
        );`,
		`CREATE INDEX IF NOT EXISTS support_messages_room_seq
            ON support_messages (room_id, seq DESC);`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
