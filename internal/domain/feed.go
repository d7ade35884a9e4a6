package domain

import "time"

// FeedItemStatus tracks an item's lifecycle relative to the feed history.
type FeedItemStatus string

const (
	FeedItemUnknown FeedItemStatus = "unknown"
	FeedItemBacklog FeedItemStatus = "backlog"
	FeedItemFetched FeedItemStatus = "fetched"
	FeedItemNew     FeedItemStatus = "new"
)

// MatchStatus is the outcome of running an item through the filter engine.
type MatchStatus string

const (
	MatchIgnored  MatchStatus = "ignored"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

// FeedItem is one entry parsed out of an RSS/Atom feed document.
type FeedItem struct {
	Title    string
	Filename string
	URL      string
	Category string
	Size     int64
	Time     time.Time

	Season  int
	Episode int

	Status      FeedItemStatus
	MatchStatus MatchStatus
	MatchRule   int

	DupeKey   string
	DupeScore int
	DupeMode  DupeMode

	Attrs map[string]string

	AddCategory string
	Priority    int
	Pause       bool
}

// FeedStatus is the lifecycle of a feed poll.
type FeedStatus string

const (
	FeedUndefined FeedStatus = "undefined"
	FeedRunning   FeedStatus = "running"
	FeedFinished  FeedStatus = "finished"
	FeedFailed    FeedStatus = "failed"
)

// FeedHistoryEntry is what the feed's in-memory (and store-backed) history
// remembers per item URL so repeated polls can classify backlog vs new.
type FeedHistoryEntry struct {
	Status   FeedItemStatus
	LastSeen time.Time
}

// Feed is a configured RSS/Atom source.
type Feed struct {
	Name     string
	URL      string
	Interval time.Duration
	Filter   string // compiled lazily by feed/filter
	Pause    bool
	Category string
	Priority int

	LastUpdate time.Time
	Status     FeedStatus

	History map[string]FeedHistoryEntry
}
