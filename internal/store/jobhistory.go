package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

// RecordCompletion archives a job that has left the live queue (completed
// or deleted) so the RPC History command (§4.12 type 14) and dupe-key
// lookups can see it after it's gone from memory.
func (s *Store) RecordCompletion(ctx context.Context, job *domain.Job) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO job_history (id, display_name, category, source_name, size, dest_dir, delete_status, dupe_key, dupe_score, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			delete_status = excluded.delete_status,
			completed_at = excluded.completed_at`),
		job.ID, job.DisplayName, job.Category, job.SourceName, job.Size, job.DestDir,
		string(job.DeleteStatus), job.DupeKey, job.DupeScore, time.Now(),
	)
	return err
}

// History returns the most recent archived jobs, newest first, capped at
// limit.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, display_name, category, source_name, size, dest_dir, delete_status, dupe_key, dupe_score, completed_at
		FROM job_history ORDER BY completed_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var d jobHistoryDBO
		if err := rows.Scan(&d.ID, &d.DisplayName, &d.Category, &d.SourceName, &d.Size, &d.DestDir,
			&d.DeleteStatus, &d.DupeKey, &d.DupeScore, &d.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, d.toEntry())
	}
	return out, rows.Err()
}

// DupeKeySeen reports whether a dupe key has already been archived, and the
// highest score it was recorded with. Nothing in this module calls it.
func (s *Store) DupeKeySeen(ctx context.Context, dupeKey string) (score int, ok bool, err error) {
	var s2 sql.NullInt64
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT MAX(dupe_score) FROM job_history WHERE dupe_key = ?`), dupeKey)
	if scanErr := row.Scan(&s2); scanErr != nil {
		return 0, false, scanErr
	}
	if !s2.Valid {
		return 0, false, nil
	}
	return int(s2.Int64), true, nil
}
