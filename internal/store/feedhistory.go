package store

import (
	"context"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

// SaveFeedHistory upserts one feed's in-memory history map into the
// database so a restart doesn't re-accept every item the feed still
// carries in its window.
func (s *Store) SaveFeedHistory(ctx context.Context, feedName string, history map[string]domain.FeedHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.bind(`
		INSERT INTO feed_history (feed_name, item_key, status, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(feed_name, item_key) DO UPDATE SET
			status = excluded.status,
			last_seen = excluded.last_seen`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, entry := range history {
		if _, err := stmt.ExecContext(ctx, feedName, key, string(entry.Status), entry.LastSeen); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadFeedHistory reconstructs a feed's history map on startup.
func (s *Store) LoadFeedHistory(ctx context.Context, feedName string) (map[string]domain.FeedHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT item_key, status, last_seen FROM feed_history WHERE feed_name = ?`), feedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make(map[string]domain.FeedHistoryEntry)
	for rows.Next() {
		var d feedHistoryDBO
		d.FeedName = feedName
		if err := rows.Scan(&d.ItemKey, &d.Status, &d.LastSeen); err != nil {
			return nil, err
		}
		history[d.ItemKey] = d.toDomain()
	}
	return history, rows.Err()
}

// PurgeFeedHistoryBefore deletes history rows last seen before the horizon,
// mirroring the in-memory purge §4.9 describes for the persisted copy.
func (s *Store) PurgeFeedHistoryBefore(ctx context.Context, feedName string, horizon time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.bind(`DELETE FROM feed_history WHERE feed_name = ? AND last_seen < ?`), feedName, horizon)
	return err
}
