// ABOUTME: PostgreSQL implementation of the Store interface using lib/pq and squirrel
// ABOUTME: Schema is managed by golang-migrate using the embedded migrations directory

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pqForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pqForeignKeyViolation = "23503"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// conversationColumns lists columns returned by conversation SELECT queries.
var conversationColumns = []string{"id", "participant_a", "participant_b", "created_at"}

// messageColumns lists columns returned by message SELECT queries.
var messageColumns = []string{"seq", "id", "conversation_id", "sender", "text", "time_of_day", "date", "created_at"}

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore wraps an open database handle. The schema must already exist;
// use OpenPostgresStore to connect and migrate in one step.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "store"),
		now:    time.Now,
	}
}

// OpenPostgresStore connects to the database at dsn and applies pending migrations.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := NewPostgresStore(db)
	s.logger.Info("PostgreSQL store initialized")
	return s, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL store")
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterIdentity records an identity; existing identities are left untouched.
func (s *PostgresStore) RegisterIdentity(ctx context.Context, name string) error {
	query, args, err := psq.Insert("identities").
		Columns("name", "first_seen_at").
		Values(name, s.now().UTC()).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("registering identity: %w", err)
	}
	return nil
}

// ListIdentities returns all known identities in registration order.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]string, error) {
	query, args, err := psq.Select("name").From("identities").OrderBy("seq ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error after iteration is non-actionable

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	return names, nil
}

// FindOrCreateConversation returns the conversation for the unordered pair,
// inserting it first when missing.
func (s *PostgresStore) FindOrCreateConversation(ctx context.Context, a, b string) (*Conversation, error) {
	participants := CanonicalPair(a, b)

	query, args, err := psq.Insert("conversations").
		Columns("id", "participant_a", "participant_b", "created_at").
		Values(uuid.New().String(), participants[0], participants[1], s.now().UTC()).
		Suffix("ON CONFLICT (participant_a, participant_b) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	return s.getConversationByPair(ctx, participants)
}

// GetConversation retrieves the conversation between a and b.
// Returns ErrNotFound if the pair never talked.
func (s *PostgresStore) GetConversation(ctx context.Context, a, b string) (*Conversation, error) {
	return s.getConversationByPair(ctx, CanonicalPair(a, b))
}

func (s *PostgresStore) getConversationByPair(ctx context.Context, participants [2]string) (*Conversation, error) {
	query, args, err := psq.Select(conversationColumns...).
		From("conversations").
		Where(sq.Eq{"participant_a": participants[0], "participant_b": participants[1]}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var conv Conversation
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&conv.ID,
		&conv.Participants[0],
		&conv.Participants[1],
		&conv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns every conversation the identity participates in.
func (s *PostgresStore) ListConversations(ctx context.Context, identity string) ([]Conversation, error) {
	query, args, err := psq.Select(conversationColumns...).
		From("conversations").
		Where(sq.Or{
			sq.Eq{"participant_a": identity},
			sq.Eq{"participant_b": identity},
		}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error after iteration is non-actionable

	convs := []Conversation{}
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.Participants[0],
			&conv.Participants[1],
			&conv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// AppendMessage appends a message to the end of the conversation.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.ConversationID = conversationID

	query, args, err := psq.Insert("messages").
		Columns("id", "conversation_id", "sender", "text", "time_of_day", "date", "created_at").
		Values(msg.ID, conversationID, msg.From, msg.Text, msg.Time, msg.Date, msg.CreatedAt.UTC()).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&msg.Position); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return fmt.Errorf("appending message to %s: %w", conversationID, ErrNotFound)
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("appended message",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"position", msg.Position,
	)
	return nil
}

// ListMessages returns the conversation's messages in append order.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query, args, err := psq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error after iteration is non-actionable

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Position,
			&m.ID,
			&m.ConversationID,
			&m.From,
			&m.Text,
			&m.Time,
			&m.Date,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
