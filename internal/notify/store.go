package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Channel is a configured webhook notification target.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelStore persists notification channels.
type ChannelStore struct {
	db *sql.DB
}

// NewChannelStore creates a store backed by the shared database.
func NewChannelStore(db *sql.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

// InsertChannel registers a channel.
func (s *ChannelStore) InsertChannel(ctx context.Context, ch *Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notify_channels (id, name, url, secret, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.URL, ch.Secret, ch.Enabled, ch.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert channel %s: %w", ch.Name, err)
	}
	return nil
}

// ListChannels returns all channels. When enabledOnly is set, disabled
// channels are excluded.
func (s *ChannelStore) ListChannels(ctx context.Context, enabledOnly bool) ([]Channel, error) {
	query := `SELECT id, name, url, secret, enabled, created_at FROM notify_channels`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.Secret, &ch.Enabled, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// DeleteChannel removes a channel. Returns false when no channel matched.
func (s *ChannelStore) DeleteChannel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notify_channels WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete channel %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
