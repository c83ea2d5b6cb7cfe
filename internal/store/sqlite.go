// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite and sqlx
// ABOUTME: Provides identity registry and conversation persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS identities (
		name          TEXT PRIMARY KEY,
		first_seen_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id            TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		UNIQUE (participant_a, participant_b)
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations(participant_b);

	CREATE TABLE IF NOT EXISTS messages (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender          TEXT NOT NULL,
		text            TEXT NOT NULL,
		time_of_day     TEXT NOT NULL,
		date            TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
`

// conversationRow is the scan target for conversation queries.
type conversationRow struct {
	ID           string `db:"id"`
	ParticipantA string `db:"participant_a"`
	ParticipantB string `db:"participant_b"`
	CreatedAt    string `db:"created_at"`
}

func (r conversationRow) toConversation() (Conversation, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return Conversation{
		ID:           r.ID,
		Participants: [2]string{r.ParticipantA, r.ParticipantB},
		CreatedAt:    createdAt,
	}, nil
}

// messageRow is the scan target for message queries.
type messageRow struct {
	Seq            int64  `db:"seq"`
	ID             string `db:"id"`
	ConversationID string `db:"conversation_id"`
	Sender         string `db:"sender"`
	Text           string `db:"text"`
	TimeOfDay      string `db:"time_of_day"`
	Date           string `db:"date"`
	CreatedAt      string `db:"created_at"`
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterIdentity records an identity; existing identities are left untouched.
func (s *SQLiteStore) RegisterIdentity(ctx context.Context, name string) error {
	query := `
		INSERT INTO identities (name, first_seen_at)
		VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, name, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("registering identity: %w", err)
	}
	return nil
}

// ListIdentities returns all known identities in registration order.
func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM identities ORDER BY rowid`); err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	return names, nil
}

// FindOrCreateConversation returns the conversation for the unordered pair,
// inserting it first when missing. The unique ordered pair makes the insert a
// no-op for every creator but the first.
func (s *SQLiteStore) FindOrCreateConversation(ctx context.Context, a, b string) (*Conversation, error) {
	participants := CanonicalPair(a, b)

	query := `
		INSERT INTO conversations (id, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_a, participant_b) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		participants[0],
		participants[1],
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	return s.getConversationByPair(ctx, participants)
}

// GetConversation retrieves the conversation between a and b.
// Returns ErrNotFound if the pair never talked.
func (s *SQLiteStore) GetConversation(ctx context.Context, a, b string) (*Conversation, error) {
	return s.getConversationByPair(ctx, CanonicalPair(a, b))
}

func (s *SQLiteStore) getConversationByPair(ctx context.Context, participants [2]string) (*Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, created_at
		FROM conversations
		WHERE participant_a = ? AND participant_b = ?
	`

	var row conversationRow
	err := s.db.GetContext(ctx, &row, query, participants[0], participants[1])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv, err := row.toConversation()
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns every conversation the identity participates in.
func (s *SQLiteStore) ListConversations(ctx context.Context, identity string) ([]Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, created_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY rowid ASC
	`

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, query, identity, identity); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	convs := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		conv, err := row.toConversation()
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// AppendMessage appends a message to the end of the conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.ConversationID = conversationID

	query := `
		INSERT INTO messages (id, conversation_id, sender, text, time_of_day, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		msg.ID,
		conversationID,
		msg.From,
		msg.Text,
		msg.Time,
		msg.Date,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("appending message to %s: %w", conversationID, ErrNotFound)
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message position: %w", err)
	}
	msg.Position = seq

	s.logger.Debug("appended message",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"position", seq,
	)
	return nil
}

// ListMessages returns the conversation's messages in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT seq, id, conversation_id, sender, text, time_of_day, date, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			Position:       row.Seq,
			From:           row.Sender,
			Text:           row.Text,
			Time:           row.TimeOfDay,
			Date:           row.Date,
			CreatedAt:      createdAt,
		})
	}
	return messages, nil
}
