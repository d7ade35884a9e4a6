package feed

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/feed/filter"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
	"github.com/nzbcore/gonzbd/internal/nzb"
	"github.com/nzbcore/gonzbd/internal/queue"
	"github.com/nzbcore/gonzbd/internal/subject"
	"github.com/nzbcore/gonzbd/internal/urlfetch"
)

// Downloader is the subset of urlfetch.Client a Fetcher needs; narrowed so
// tests can fake it.
type Downloader interface {
	FetchWithRetry(ctx context.Context, target string, policy urlfetch.RetryPolicy) (*urlfetch.Result, error)
}

// defaultHistoryHorizon is how long an item may go unseen in a feed poll before
// its history entry is purged.
const defaultHistoryHorizon = 14 * 24 * time.Hour

// Fetcher owns the per-feed poll loop: download the RSS document, parse it,
// evaluate each new item against the feed's compiled filter, and enqueue
// accepted items as new jobs.
type Fetcher struct {
	fetcher Downloader
	parser  *nzb.Parser
	q       *queue.Queue
	logger  *logger.Logger

	destDirFor func(feed *domain.Feed, category string) string

	mu    sync.Mutex
	feeds map[string]*domain.Feed
	rules map[string][]domain.FilterRule
}

// NewFetcher builds a Fetcher. destDirFor resolves the destination
// directory a newly accepted item's job should download into, typically
// category-dependent.
func NewFetcher(dl Downloader, parser *nzb.Parser, q *queue.Queue, log *logger.Logger, destDirFor func(*domain.Feed, string) string) *Fetcher {
	return &Fetcher{
		fetcher:    dl,
		parser:     parser,
		q:          q,
		logger:     log,
		destDirFor: destDirFor,
		feeds:      make(map[string]*domain.Feed),
		rules:      make(map[string][]domain.FilterRule),
	}
}

// Register adds or replaces a feed definition and (re)compiles its filter.
func (f *Fetcher) Register(feed *domain.Feed) error {
	rules, err := filter.Compile(feed.Filter)
	if err != nil {
		return err
	}
	if feed.History == nil {
		feed.History = make(map[string]domain.FeedHistoryEntry)
	}

	f.mu.Lock()
	f.feeds[feed.Name] = feed
	f.rules[feed.Name] = rules
	f.mu.Unlock()
	return nil
}

// Run starts one goroutine per registered feed, each waking on its own
// interval, until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	f.mu.Lock()
	feeds := make([]*domain.Feed, 0, len(f.feeds))
	for _, feed := range f.feeds {
		feeds = append(feeds, feed)
	}
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		go func(feed *domain.Feed) {
			defer wg.Done()
			f.runFeed(ctx, feed)
		}(feed)
	}
	wg.Wait()
}

func (f *Fetcher) runFeed(ctx context.Context, feed *domain.Feed) {
	interval := feed.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.Poll(ctx, feed.Name)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Poll(ctx, feed.Name)
		}
	}
}

// Poll fetches a feed's document once, on demand or from the interval
// loop, and processes every item it contains.
func (f *Fetcher) Poll(ctx context.Context, feedName string) {
	f.mu.Lock()
	feed := f.feeds[feedName]
	rules := f.rules[feedName]
	f.mu.Unlock()

	if feed == nil || feed.Pause {
		return
	}

	feed.Status = domain.FeedRunning

	result, err := f.fetcher.FetchWithRetry(ctx, feed.URL, urlfetch.RetryPolicy{
		Retries: 3, ConnectRetries: 5, Interval: 10 * time.Second,
	})
	if err != nil {
		feed.Status = domain.FeedFailed
		f.logger.Error("feed %s: fetch failed: %v", feed.Name, err)
		return
	}

	items, err := ParseRSS(result.Body)
	if err != nil {
		feed.Status = domain.FeedFailed
		f.logger.Error("feed %s: parse failed: %v", feed.Name, err)
		return
	}

	now := time.Now()
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		key := item.URL
		if key == "" {
			key = item.Attrs["guid"]
		}
		seen[key] = true

		if entry, ok := feed.History[key]; ok {
			feed.History[key] = domain.FeedHistoryEntry{Status: entry.Status, LastSeen: now}
			continue
		}

		if name, confirmed := subject.Guess(item.Title); confirmed || item.Filename == item.Title {
			item.Filename = name
		}

		item.Status = domain.FeedItemNew
		f.processItem(ctx, feed, rules, item, now)

		feed.History[key] = domain.FeedHistoryEntry{Status: item.Status, LastSeen: now}
	}

	f.purgeStale(feed, now)
	feed.LastUpdate = now
	feed.Status = domain.FeedFinished
}

func (f *Fetcher) processItem(ctx context.Context, feed *domain.Feed, rules []domain.FilterRule, item *domain.FeedItem, now time.Time) {
	outcome := filter.Evaluate(rules, item, now)
	item.MatchStatus = outcome.Status
	item.MatchRule = outcome.RuleIndex

	if outcome.Status != domain.MatchAccepted {
		return
	}

	opts := outcome.Options
	category := feed.Category
	if opts.Category != "" {
		category = opts.Category
	}
	item.Category = category
	item.DupeScore = opts.DupeScore + opts.AddDupeScore
	if opts.DupeKey != "" {
		item.DupeKey = opts.DupeKey
	}
	if opts.AddDupeKey != "" {
		item.DupeKey += opts.AddDupeKey
	}
	if opts.DupeMode != "" {
		item.DupeMode = opts.DupeMode
	}

	priority := feed.Priority
	if opts.HasPriority {
		priority = opts.Priority
	}
	priority += opts.AddPriority

	f.fetchAndEnqueue(ctx, feed, item, category, priority, opts.Pause)
}

func (f *Fetcher) fetchAndEnqueue(ctx context.Context, feed *domain.Feed, item *domain.FeedItem, category string, priority int, pause bool) {
	result, err := f.fetcher.FetchWithRetry(ctx, item.URL, urlfetch.RetryPolicy{
		Retries: 3, ConnectRetries: 5, Interval: 10 * time.Second,
	})
	if err != nil {
		f.logger.Error("feed %s: item %q nzb fetch failed: %v", feed.Name, item.Title, err)
		return
	}

	destDir := category
	if f.destDirFor != nil {
		destDir = f.destDirFor(feed, category)
	}

	job, err := f.parser.Parse(bytes.NewReader(result.Body), item.Filename, feed.Name, destDir, category)
	if err != nil {
		f.logger.Warn("feed %s: item %q produced no job: %v", feed.Name, item.Title, err)
		return
	}

	job.Priority = priority
	job.DupeKey = item.DupeKey
	job.DupeScore = item.DupeScore
	if item.DupeMode != "" {
		job.DupeMode = item.DupeMode
	}
	if pause {
		for _, file := range job.Files {
			file.Paused = true
		}
	}

	f.q.AddJob(job)
	f.logger.Info("feed %s: accepted %q as job %s", feed.Name, item.Title, job.ID)
}

func (f *Fetcher) purgeStale(feed *domain.Feed, now time.Time) {
	for key, entry := range feed.History {
		if now.Sub(entry.LastSeen) > defaultHistoryHorizon {
			delete(feed.History, key)
		}
	}
}
