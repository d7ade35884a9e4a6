package store

import (
	"database/sql"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

// feedHistoryDBO maps to the feed_history table.
type feedHistoryDBO struct {
	FeedName string
	ItemKey  string
	Status   string
	LastSeen time.Time
}

func (d feedHistoryDBO) toDomain() domain.FeedHistoryEntry {
	return domain.FeedHistoryEntry{Status: domain.FeedItemStatus(d.Status), LastSeen: d.LastSeen}
}

// jobHistoryDBO maps to the job_history table.
type jobHistoryDBO struct {
	ID           string
	DisplayName  string
	Category     sql.NullString
	SourceName   sql.NullString
	Size         int64
	DestDir      sql.NullString
	DeleteStatus string
	DupeKey      sql.NullString
	DupeScore    sql.NullInt64
	CompletedAt  time.Time
}

// HistoryEntry is one completed or deleted job as surfaced by the RPC
// History command (§4.12 type 14).
type HistoryEntry struct {
	ID           string
	DisplayName  string
	Category     string
	SourceName   string
	Size         int64
	DestDir      string
	DeleteStatus domain.DeleteStatus
	DupeKey      string
	DupeScore    int
	CompletedAt  time.Time
}

func (d jobHistoryDBO) toEntry() HistoryEntry {
	return HistoryEntry{
		ID:           d.ID,
		DisplayName:  d.DisplayName,
		Category:     d.Category.String,
		SourceName:   d.SourceName.String,
		Size:         d.Size,
		DestDir:      d.DestDir.String,
		DeleteStatus: domain.DeleteStatus(d.DeleteStatus),
		DupeKey:      d.DupeKey.String,
		DupeScore:    int(d.DupeScore.Int64),
		CompletedAt:  d.CompletedAt,
	}
}
