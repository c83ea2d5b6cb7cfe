// ABOUTME: Tests for the PostgreSQL store using go-sqlmock
// ABOUTME: Verifies generated SQL, argument binding, row scanning, and error mapping

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pgTestConvID = "conv-123"

var pgTestNow = time.Date(2024, 5, 1, 14, 3, 0, 0, time.UTC)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return pgTestNow }
	return s, mock
}

func TestPostgres_RegisterIdentity(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO identities \(name,first_seen_at\) VALUES \(\$1,\$2\) ON CONFLICT \(name\) DO NOTHING`).
		WithArgs("alice", pgTestNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.RegisterIdentity(context.Background(), "alice")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RegisterIdentity_DBError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO identities").
		WillReturnError(errors.New("connection refused"))

	err := s.RegisterIdentity(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registering identity")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListIdentities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"name"}).AddRow("bob").AddRow("alice")
	mock.ExpectQuery(`SELECT name FROM identities ORDER BY seq ASC`).WillReturnRows(rows)

	names, err := s.ListIdentities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListIdentities_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT name FROM identities").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	names, err := s.ListIdentities(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestPostgres_FindOrCreateConversation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO conversations \(id,participant_a,participant_b,created_at\) VALUES \(\$1,\$2,\$3,\$4\) ON CONFLICT \(participant_a, participant_b\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "alice", "bob", pgTestNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows(conversationColumns).AddRow(pgTestConvID, "alice", "bob", pgTestNow)
	mock.ExpectQuery(`SELECT .+ FROM conversations WHERE participant_a = \$1 AND participant_b = \$2`).
		WithArgs("alice", "bob").
		WillReturnRows(rows)

	// Reversed arguments still produce the canonical participant order.
	conv, err := s.FindOrCreateConversation(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, pgTestConvID, conv.ID)
	assert.Equal(t, [2]string{"alice", "bob"}, conv.Participants)
	assert.True(t, pgTestNow.Equal(conv.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindOrCreateConversation_InsertError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO conversations").WillReturnError(errors.New("connection refused"))

	_, err := s.FindOrCreateConversation(context.Background(), "alice", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting conversation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetConversation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT .+ FROM conversations").WillReturnRows(sqlmock.NewRows(conversationColumns))

	_, err := s.GetConversation(context.Background(), "alice", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListConversations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rows := sqlmock.NewRows(conversationColumns).
		AddRow("c1", "alice", "bob", pgTestNow).
		AddRow("c2", "alice", "carol", pgTestNow)
	mock.ExpectQuery(`SELECT .+ FROM conversations WHERE \(participant_a = \$1 OR participant_b = \$2\) ORDER BY seq ASC`).
		WithArgs("alice", "alice").
		WillReturnRows(rows)

	convs, err := s.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "bob", convs[0].Other("alice"))
	assert.Equal(t, "carol", convs[1].Other("alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendMessage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO messages .+ RETURNING seq`).
		WithArgs(sqlmock.AnyArg(), pgTestConvID, "alice", "hi bob", "14:03", "2024-05-01", pgTestNow).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	msg := &Message{From: "alice", Text: "hi bob", Time: "14:03", Date: "2024-05-01"}
	err := s.AppendMessage(context.Background(), pgTestConvID, msg)
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.Position)
	assert.Equal(t, pgTestConvID, msg.ConversationID)
	assert.NotEmpty(t, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendMessage_UnknownConversation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("INSERT INTO messages").
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Message: "violates foreign key constraint"})

	err := s.AppendMessage(context.Background(), "missing", &Message{From: "alice", Text: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendMessage_DBError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("INSERT INTO messages").WillReturnError(errors.New("connection refused"))

	err := s.AppendMessage(context.Background(), pgTestConvID, &Message{From: "alice", Text: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "inserting message")
}

func TestPostgres_ListMessages(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows(messageColumns).
		AddRow(int64(1), "m1", pgTestConvID, "alice", "hi bob", "14:03", "2024-05-01", pgTestNow).
		AddRow(int64(2), "m2", pgTestConvID, "bob", "hi alice", "14:04", "2024-05-01", pgTestNow)
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE conversation_id = \$1 ORDER BY seq ASC`).
		WithArgs(pgTestConvID).
		WillReturnRows(rows)

	msgs, err := s.ListMessages(context.Background(), pgTestConvID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi bob", msgs[0].Text)
	assert.Equal(t, "bob", msgs[1].From)
	assert.Equal(t, "14:04", msgs[1].Time)
	assert.Equal(t, int64(2), msgs[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	assert.Error(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindOrCreateConversation_SeparatorBytesStayDistinct(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Each identity travels as its own parameter; nothing is joined.
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(sqlmock.AnyArg(), "a|b", "c", pgTestNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM conversations WHERE participant_a = \$1 AND participant_b = \$2`).
		WithArgs("a|b", "c").
		WillReturnRows(sqlmock.NewRows(conversationColumns).AddRow("c1", "a|b", "c", pgTestNow))

	conv, err := s.FindOrCreateConversation(context.Background(), "c", "a|b")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"a|b", "c"}, conv.Participants)
	assert.NoError(t, mock.ExpectationsWereMet())
}
