package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
)

// PostgresMemory is the alternate managed-Postgres Store, selected by a
// DSN read from an env var and never persisted in the role file. Schema is
// versioned with golang-migrate using its pgx/v5 driver, which needs no
// cgo dependency, unlike the stock postgres driver's lib/pq.
type PostgresMemory struct {
	pool *pgxpool.Pool
}

// NewPostgresMemory connects to dsn and applies any pending migrations
// found under migrationsDir.
func NewPostgresMemory(ctx context.Context, dsn, migrationsDir string) (*PostgresMemory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres memory store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres memory store: %w", err)
	}

	if err := applyMigrations(dsn, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresMemory{pool: pool}, nil
}

// applyMigrations runs pending schema migrations. golang-migrate selects a
// driver by DSN scheme, so a "postgres://"/"postgresql://" DSN (the form
// pgxpool also accepts) is rewritten to "pgx5://" here, routing it to the
// blank-imported pgx/v5 driver instead of the stock lib/pq-based one.
func applyMigrations(dsn, migrationsDir string) error {
	migrationDSN := dsn
	if i := strings.Index(dsn, "://"); i >= 0 {
		migrationDSN = "pgx5" + dsn[i:]
	}

	m, err := migrate.New("file://"+migrationsDir, migrationDSN)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (m *PostgresMemory) CaptureEpisode(ctx context.Context, ep Episode) error {
	_, err := m.pool.Exec(ctx,
		`INSERT INTO episodes (trigger_type, conversation_key, summary, final_status, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ep.TriggerType, ep.ConversationKey, ep.Summary, ep.FinalStatus, ep.TotalTokens, ep.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("capture episode: %w", err)
	}
	return nil
}

func (m *PostgresMemory) SaveSession(ctx context.Context, conversationKey string, messages []providers.Message) error {
	if conversationKey == "" {
		return nil
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal session messages: %w", err)
	}
	_, err = m.pool.Exec(ctx,
		`INSERT INTO sessions (conversation_key, messages_json, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (conversation_key) DO UPDATE SET messages_json = EXCLUDED.messages_json, updated_at = EXCLUDED.updated_at`,
		conversationKey, payload)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *PostgresMemory) LoadSession(ctx context.Context, conversationKey string) ([]providers.Message, bool, error) {
	if conversationKey == "" {
		return nil, false, nil
	}
	var payload []byte
	err := m.pool.QueryRow(ctx,
		`SELECT messages_json FROM sessions WHERE conversation_key = $1`, conversationKey).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	var messages []providers.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, false, fmt.Errorf("decode session messages: %w", err)
	}
	return messages, true, nil
}

func (m *PostgresMemory) Close() error {
	m.pool.Close()
	return nil
}
