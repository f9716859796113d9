package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS episodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trigger_type TEXT NOT NULL,
	conversation_key TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	final_status TEXT NOT NULL DEFAULT '',
	total_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	conversation_key TEXT PRIMARY KEY,
	messages_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteMemory is the default embedded Store, backed by modernc.org/sqlite
// (pure Go, no cgo). Schema is bootstrapped inline rather than through
// golang-migrate: migrate's sqlite driver requires the cgo mattn/go-sqlite3
// binding, which conflicts with the pure-Go driver selected here. The
// Postgres path uses golang-migrate, whose pgx/v5 driver needs no cgo.
type SQLiteMemory struct {
	db *sql.DB
}

// NewSQLiteMemory opens (creating if absent) a sqlite database at path and
// bootstraps its schema.
func NewSQLiteMemory(path string) (*SQLiteMemory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}
	return &SQLiteMemory{db: db}, nil
}

func (m *SQLiteMemory) CaptureEpisode(ctx context.Context, ep Episode) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO episodes (trigger_type, conversation_key, summary, final_status, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ep.TriggerType, ep.ConversationKey, ep.Summary, ep.FinalStatus, ep.TotalTokens,
		ep.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	if err != nil {
		return fmt.Errorf("capture episode: %w", err)
	}
	return nil
}

func (m *SQLiteMemory) SaveSession(ctx context.Context, conversationKey string, messages []providers.Message) error {
	if conversationKey == "" {
		return nil
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal session messages: %w", err)
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO sessions (conversation_key, messages_json, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(conversation_key) DO UPDATE SET messages_json = excluded.messages_json, updated_at = excluded.updated_at`,
		conversationKey, string(payload))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *SQLiteMemory) LoadSession(ctx context.Context, conversationKey string) ([]providers.Message, bool, error) {
	if conversationKey == "" {
		return nil, false, nil
	}
	var payload string
	err := m.db.QueryRowContext(ctx,
		`SELECT messages_json FROM sessions WHERE conversation_key = ?`, conversationKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	var messages []providers.Message
	if err := json.Unmarshal([]byte(payload), &messages); err != nil {
		return nil, false, fmt.Errorf("decode session messages: %w", err)
	}
	return messages, true, nil
}

func (m *SQLiteMemory) Close() error {
	return m.db.Close()
}
