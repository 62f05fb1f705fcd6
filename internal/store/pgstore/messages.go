package pgstore

import (
	"context"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/messaging"
)

const messageColumns = `id, sender_id, receiver_id, pair_key, body, order_id, gig_id, job_id, created_at`

func scanMessage(row scanner) (messaging.Message, error) {
	var m messaging.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.PairKey, &m.Body, &m.OrderID, &m.GigID, &m.JobID, &m.CreatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func (s *Store) SaveMessage(ctx context.Context, m *messaging.Message) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO messages (`+messageColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.SenderID, m.ReceiverID, m.PairKey, m.Body, m.OrderID, m.GigID, m.JobID, m.CreatedAt,
	)
	return translate(err, "save message")
}

func (s *Store) ListBetween(ctx context.Context, a, b string, since time.Time) ([]messaging.Message, error) {
	return s.queryMessages(ctx, `
        SELECT `+messageColumns+` FROM messages
        WHERE pair_key = $1 AND created_at > $2
        ORDER BY created_at ASC, id ASC`,
		messaging.PairKey(a, b), since)
}

func (s *Store) LatestPerCounterpart(ctx context.Context, userID string, limit int) ([]messaging.Message, error) {
	return s.queryMessages(ctx, `
        SELECT `+messageColumns+` FROM (
            SELECT DISTINCT ON (pair_key) `+messageColumns+`
            FROM messages
            WHERE sender_id = $1 OR receiver_id = $1
            ORDER BY pair_key, created_at DESC, id DESC
        ) latest
        ORDER BY created_at DESC
        LIMIT $2`,
		userID, limit)
}

func (s *Store) queryMessages(ctx context.Context, q string, args ...any) ([]messaging.Message, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err, "query messages")
	}
	defer rows.Close()
	var out []messaging.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, translate(err, "scan message")
		}
		out = append(out, m)
	}
	return out, translate(rows.Err(), "query messages")
}
