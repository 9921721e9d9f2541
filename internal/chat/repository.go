package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"

	"bridgeme/internal/call"
)

// Repository archives conversations and the call history so they survive a
// restart. Seeded call logs have an empty owner and are visible to everyone.
type Repository interface {
	SaveMessage(ctx context.Context, ownerID, peerID string, m Message) error
	DeleteMessage(ctx context.Context, ownerID, peerID, id string) error
	RecentMessages(ctx context.Context, ownerID, peerID string, limit int) ([]Message, error)
	SaveCallLog(ctx context.Context, ownerID string, l CallLog) error
	CallLogs(ctx context.Context, ownerID, participantID string) ([]CallLog, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SaveMessage(ctx context.Context, ownerID, peerID string, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO messages (id, owner_id, peer_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`
	_, err = r.db.ExecContext(ctx, query, m.ID, ownerID, peerID, payload, m.Timestamp)
	return err
}

func (r *PostgresRepository) DeleteMessage(ctx context.Context, ownerID, peerID, id string) error {
	query := "DELETE FROM messages WHERE id = $1 AND owner_id = $2 AND peer_id = $3"
	_, err := r.db.ExecContext(ctx, query, id, ownerID, peerID)
	return err
}

func (r *PostgresRepository) RecentMessages(ctx context.Context, ownerID, peerID string, limit int) ([]Message, error) {
	query := `
		SELECT payload FROM messages
		WHERE owner_id = $1 AND peer_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, peerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *PostgresRepository) SaveCallLog(ctx context.Context, ownerID string, l CallLog) error {
	query := `
		INSERT INTO call_logs (id, owner_id, participant_id, created_at, duration, medium, outcome, direction, recording_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, l.ID, ownerID, l.ParticipantID, l.Timestamp, l.Duration,
		string(l.Medium), string(l.Outcome), string(l.Direction), l.RecordingURL)
	return err
}

func (r *PostgresRepository) CallLogs(ctx context.Context, ownerID, participantID string) ([]CallLog, error) {
	query := `
		SELECT id, participant_id, created_at, duration, medium, outcome, direction, recording_url
		FROM call_logs
		WHERE participant_id = $1 AND (owner_id = $2 OR owner_id = '')
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, participantID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []CallLog
	for rows.Next() {
		var l CallLog
		var medium, outcome, direction string
		if err := rows.Scan(&l.ID, &l.ParticipantID, &l.Timestamp, &l.Duration, &medium, &outcome, &direction, &l.RecordingURL); err != nil {
			return nil, err
		}
		l.Medium, l.Outcome, l.Direction = call.Medium(medium), call.Outcome(outcome), call.Direction(direction)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type ownedLog struct {
	owner string
	log   CallLog
}

// MemoryRepository is the archive used when no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	messages map[string][]Message
	logs     []ownedLog
}

func NewMemoryRepository(seed []CallLog) *MemoryRepository {
	r := &MemoryRepository{messages: make(map[string][]Message)}
	for _, l := range seed {
		r.logs = append(r.logs, ownedLog{log: l})
	}
	return r
}

func pairKey(ownerID, peerID string) string { return ownerID + "|" + peerID }

func (r *MemoryRepository) SaveMessage(_ context.Context, ownerID, peerID string, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey(ownerID, peerID)
	for i := range r.messages[k] {
		if r.messages[k][i].ID == m.ID {
			r.messages[k][i] = m.clone()
			return nil
		}
	}
	r.messages[k] = append(r.messages[k], m.clone())
	return nil
}

func (r *MemoryRepository) DeleteMessage(_ context.Context, ownerID, peerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey(ownerID, peerID)
	msgs := r.messages[k]
	for i := range msgs {
		if msgs[i].ID == id {
			r.messages[k] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) RecentMessages(_ context.Context, ownerID, peerID string, limit int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.messages[pairKey(ownerID, peerID)]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out, nil
}

func (r *MemoryRepository) SaveCallLog(_ context.Context, ownerID string, l CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, ownedLog{owner: ownerID, log: l})
	return nil
}

func (r *MemoryRepository) CallLogs(_ context.Context, ownerID, participantID string) ([]CallLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CallLog
	for _, o := range r.logs {
		if o.log.ParticipantID == participantID && (o.owner == ownerID || o.owner == "") {
			out = append(out, o.log)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
