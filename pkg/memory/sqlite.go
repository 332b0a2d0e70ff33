package memory

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"devteam/pkg/logx"
	"devteam/pkg/proto"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS notes (
	key  TEXT PRIMARY KEY,
	text TEXT NOT NULL
);
`

// SQLiteStore is a Store persisted to a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping memory database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize memory schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("memory")
	logger.Info("memory database opened: %s", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendMessage implements Store.
func (s *SQLiteStore) AppendMessage(sessionID string, msg *proto.Message) error {
	payload, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (session_id, seq, payload)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?)`,
		sessionID, sessionID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append message for session %s: %w", sessionID, err)
	}
	return nil
}

// Messages implements Store.
func (s *SQLiteStore) Messages(sessionID string) ([]*proto.Message, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM messages WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var history []*proto.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg, err := proto.MessageFromJSON([]byte(payload))
		if err != nil {
			return nil, err
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return history, nil
}

// SaveNote implements Store.
func (s *SQLiteStore) SaveNote(key, text string) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (key, text) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET text = excluded.text`,
		key, text,
	)
	if err != nil {
		return fmt.Errorf("save note %q: %w", key, err)
	}
	return nil
}

// Note implements Store.
func (s *SQLiteStore) Note(key string) (string, bool, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM notes WHERE key = ?`, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load note %q: %w", key, err)
	}
	return text, true, nil
}

// SnapshotKey builds the note key used for pre-edit file snapshots.
func SnapshotKey(path string) string {
	return "file_snapshot:" + path
}

// PlanKey builds the note key used to store a task's plan text.
func PlanKey(taskID string) string {
	return "plan:" + taskID
}
