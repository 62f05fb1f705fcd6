package sqlstore

import (
	"context"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/messaging"
)

func (s *Store) SaveMessage(ctx context.Context, m *messaging.Message) error {
	return translate(s.db.WithContext(ctx).Create(m).Error, "save message")
}

// ListBetween relies on timestamps being stored in UTC; see Open.
func (s *Store) ListBetween(ctx context.Context, a, b string, since time.Time) ([]messaging.Message, error) {
	var out []messaging.Message
	err := s.db.WithContext(ctx).
		Where("pair_key = ? AND created_at > ?", messaging.PairKey(a, b), since.UTC()).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, translate(err, "list messages")
}

func (s *Store) LatestPerCounterpart(ctx context.Context, userID string, limit int) ([]messaging.Message, error) {
	var out []messaging.Message
	err := s.db.WithContext(ctx).Raw(`
        SELECT m.* FROM messages m
        JOIN (
            SELECT pair_key, MAX(created_at) AS latest
            FROM messages
            WHERE sender_id = ? OR receiver_id = ?
            GROUP BY pair_key
        ) l ON m.pair_key = l.pair_key AND m.created_at = l.latest
        ORDER BY m.created_at DESC
        LIMIT ?`, userID, userID, limit).
		Scan(&out).Error
	return out, translate(err, "latest conversations")
}
