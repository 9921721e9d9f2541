package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bridgeme/internal/call"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRecentMessagesOldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	newer, _ := json.Marshal(Message{ID: "2", SenderID: "me", Text: "second", Kind: KindText})
	older, _ := json.Marshal(Message{ID: "1", SenderID: "u1", Text: "first", Kind: KindText})
	mock.ExpectQuery("SELECT payload FROM messages").
		WithArgs("me", "u1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(newer).AddRow(older))

	msgs, err := NewRepository(db).RecentMessages(context.Background(), "me", "u1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveMessageUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := Message{ID: "9", SenderID: "me", Text: "hi", Timestamp: time.Now()}
	mock.ExpectExec("INSERT INTO messages .* ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("9", "me", "u1", sqlmock.AnyArg(), m.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRepository(db).SaveMessage(context.Background(), "me", "u1", m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCallLogs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now()
	mock.ExpectQuery("SELECT id, participant_id, created_at, duration, medium, outcome, direction, recording_url FROM call_logs").
		WithArgs("u1", "me").
		WillReturnRows(sqlmock.NewRows([]string{"id", "participant_id", "created_at", "duration", "medium", "outcome", "direction", "recording_url"}).
			AddRow("c1", "u1", at, "15:30", "video", "completed", "outgoing", ""))

	logs, err := NewRepository(db).CallLogs(context.Background(), "me", "u1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, call.Video, logs[0].Medium)
	assert.Equal(t, call.Completed, logs[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(nil)

	require.NoError(t, r.SaveMessage(ctx, "me", "u1", Message{ID: "1", Text: "a"}))
	require.NoError(t, r.SaveMessage(ctx, "me", "u1", Message{ID: "2", Text: "b"}))
	require.NoError(t, r.SaveMessage(ctx, "me", "u1", Message{ID: "1", Text: "a (edited)"}))
	require.NoError(t, r.SaveMessage(ctx, "me", "u2", Message{ID: "3", Text: "c"}))

	msgs, _ := r.RecentMessages(ctx, "me", "u1", 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a (edited)", msgs[0].Text)

	last, _ := r.RecentMessages(ctx, "me", "u1", 1)
	assert.Equal(t, "2", last[0].ID)

	require.NoError(t, r.DeleteMessage(ctx, "me", "u1", "1"))
	msgs, _ = r.RecentMessages(ctx, "me", "u1", 10)
	assert.Len(t, msgs, 1)

	require.NoError(t, r.SaveCallLog(ctx, "someone", CallLog{ID: "x", ParticipantID: "u1"}))
	logs, _ := r.CallLogs(ctx, "me", "u1")
	assert.Empty(t, logs)
}
