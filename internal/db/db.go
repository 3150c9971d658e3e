package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
            id SERIAL PRIMARY KEY,
            user1_id INT NOT NULL,
            user2_id INT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            requested_by INT NOT NULL,
            request_status TEXT NOT NULL DEFAULT 'pending',
            requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            accepted_at TIMESTAMPTZ,
            rejected_at TIMESTAMPTZ,
            quiz_asked_at TIMESTAMPTZ,
            quiz_consent JSONB NOT NULL DEFAULT '{}'::jsonb,
            quiz_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
            quiz_completed JSONB NOT NULL DEFAULT '{}'::jsonb,
            quiz_answers JSONB NOT NULL DEFAULT '{}'::jsonb,
            answers_exchanged_at TIMESTAMPTZ,
            compatibility_score INT,
            last_message TEXT NOT NULL DEFAULT '',
            last_message_at TIMESTAMPTZ,
            legacy_messages JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chats_active_pair
            ON chats (user1_id, user2_id) WHERE is_active;`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            chat_id INT NOT NULL REFERENCES chats(id),
            sender_id INT NOT NULL,
            content TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'text',
            image_url TEXT,
            confession_id INT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created
            ON messages (chat_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS chat_reads (
            chat_id INT NOT NULL REFERENCES chats(id),
            user_id INT NOT NULL,
            last_read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(chat_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS chat_visibility (
            chat_id INT NOT NULL REFERENCES chats(id),
            user_id INT NOT NULL,
            hidden BOOLEAN DEFAULT TRUE,
            PRIMARY KEY(chat_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS notification_tokens (
            id SERIAL PRIMARY KEY,
            user_id INT NOT NULL,
            token TEXT NOT NULL UNIQUE,
            platform TEXT NOT NULL DEFAULT 'unknown',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            last_used TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_notification_tokens_user
            ON notification_tokens (user_id, is_active);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Info("database migrations applied")
	return nil
}
