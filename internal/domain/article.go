package domain

import "time"

// ArticleStatus is the lifecycle state of one Usenet article within a file.
type ArticleStatus int

const (
	ArticleUndefined ArticleStatus = iota
	ArticleRunning
	ArticleFinished
	ArticleFailed
)

func (s ArticleStatus) String() string {
	switch s {
	case ArticleRunning:
		return "running"
	case ArticleFinished:
		return "finished"
	case ArticleFailed:
		return "failed"
	default:
		return "undefined"
	}
}

// Article is one segment of a file: one Usenet post, 1-based part number.
type Article struct {
	Part      int
	MessageID string
	Size      int64

	Status         ArticleStatus
	ResultFilename string

	// Level is the failover level this article is currently being attempted
	// at (§4.4 Failover). It only advances on NotFound, never on
	// ConnectError.
	Level int

	// RetriesRemaining and ConnectRetriesRemaining implement the per-task
	// retry loop termination rule of §7.
	RetriesRemaining        int
	ConnectRetriesRemaining int

	// NextAttemptAt gates re-dispatch after a retryable failure (§4.4/§5:
	// the scheduler sleeps retry_interval between attempts rather than
	// re-queuing immediately). Zero means eligible now.
	NextAttemptAt time.Time

	// MissingAtLevel records permanent NotFound outcomes per level so the
	// scheduler can tell "definitively missing" (all levels exhausted) apart
	// from "still has levels left to try".
	MissingAtLevel map[int]bool
}

// NewArticle builds an article with default retry budgets.
func NewArticle(part int, messageID string, size int64) *Article {
	return &Article{
		Part:                    part,
		MessageID:               messageID,
		Size:                    size,
		Status:                  ArticleUndefined,
		RetriesRemaining:        3,
		ConnectRetriesRemaining: 5,
		MissingAtLevel:          make(map[int]bool),
	}
}

// StripAngleBrackets removes the leading '<' and trailing '>' NNTP wraps a
// message-id in, matching what the NZB parser and the NNTP client both need.
func StripAngleBrackets(id string) string {
	if len(id) >= 2 && id[0] == '<' && id[len(id)-1] == '>' {
		return id[1 : len(id)-1]
	}
	return id
}
