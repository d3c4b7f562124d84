package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// MessageInsertedChannel is the NOTIFY channel fed by the messages insert trigger.
const MessageInsertedChannel = "chat_message_inserted"

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", "count", len(migrations))
	return db, nil
}

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	`CREATE TABLE IF NOT EXISTS profiles (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        role TEXT NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        avatar_url TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS conversations (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        kind TEXT NOT NULL CHECK (kind IN ('direct', 'group_doctors', 'group_patients')),
        name TEXT,
        direct_key TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_activity_at TIMESTAMPTZ
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_direct_key_uniq
        ON conversations (direct_key) WHERE kind = 'direct';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_cohort_uniq
        ON conversations (kind) WHERE kind <> 'direct';`,
	`CREATE TABLE IF NOT EXISTS participants (
        conversation_id UUID NOT NULL REFERENCES conversations(id),
        user_id UUID NOT NULL REFERENCES profiles(id),
        joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_read_at TIMESTAMPTZ,
        PRIMARY KEY (conversation_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS participants_user_idx ON participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        conversation_id UUID NOT NULL REFERENCES conversations(id),
        sender_id UUID NOT NULL REFERENCES profiles(id),
        content TEXT NOT NULL CHECK (length(btrim(content)) > 0),
        created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
        read_by TEXT[] NOT NULL DEFAULT '{}'
    );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
        ON messages (conversation_id, created_at DESC, id DESC);`,
	`CREATE OR REPLACE FUNCTION notify_message_inserted() RETURNS trigger AS $$
    BEGIN
        PERFORM pg_notify('` + MessageInsertedChannel + `',
            json_build_object('id', NEW.id, 'conversation_id', NEW.conversation_id)::text);
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS messages_notify_insert ON messages;`,
	`CREATE TRIGGER messages_notify_insert AFTER INSERT ON messages
        FOR EACH ROW EXECUTE FUNCTION notify_message_inserted();`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
