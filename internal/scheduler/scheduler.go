// Package scheduler selects which articles to download next and drives the
// worker pool that fetches and decodes them (C4).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/nzbcore/gonzbd/internal/decoding"
	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
	"github.com/nzbcore/gonzbd/internal/nntp"
	"github.com/nzbcore/gonzbd/internal/queue"
	"github.com/nzbcore/gonzbd/internal/speedmeter"
)

// articleJob is the unit of work handed to a worker: one article within one file
// within one job, plus the failover bookkeeping the worker needs.
type articleJob struct {
	job     *domain.Job
	file    *domain.File
	article *domain.Article
	groups  []string
	excl    map[string]bool
}

type articleResult struct {
	job     articleJob
	decoded []byte
	offset  int64
	result  decoding.Result
	err     error
	server  string
}

// Scheduler ticks over the queue, dispatches eligible articles to a worker
// pool sized off the NNTP pool's total capacity, and applies each result
// back onto the domain model.
type Scheduler struct {
	q             *queue.Queue
	pool          *nntp.Pool
	logger        *logger.Logger
	meter         *speedmeter.Meter
	writer        ArticleWriter
	onFile        domain.FileCompletionObserver
	onJob         domain.JobCompletionObserver
	retryInterval time.Duration

	standby   bool
	standbyMu sync.Mutex
}

// ArticleWriter persists a decoded article's bytes at the right place for
// its file. downloader.Writer implements this with a direct-write seek into
// the file's output path.
type ArticleWriter interface {
	WriteArticle(job *domain.Job, file *domain.File, article *domain.Article, data []byte, offset int64) error
}

// New builds a Scheduler. retryInterval is the §4.4/§5 delay between a
// failed article attempt and its next eligible redispatch.
func New(q *queue.Queue, pool *nntp.Pool, meter *speedmeter.Meter, writer ArticleWriter, log *logger.Logger, retryInterval time.Duration) *Scheduler {
	return &Scheduler{q: q, pool: pool, meter: meter, writer: writer, logger: log, retryInterval: retryInterval}
}

// SetObservers wires the file/job completion hooks invoked as articles and
// files resolve. Both may be nil.
func (s *Scheduler) SetObservers(onFile domain.FileCompletionObserver, onJob domain.JobCompletionObserver) {
	s.onFile = onFile
	s.onJob = onJob
}

// SetStandby pauses all dispatch without touching individual file/job pause
// flags, used by the global pause RPC command.
func (s *Scheduler) SetStandby(v bool) {
	s.standbyMu.Lock()
	s.standby = v
	s.standbyMu.Unlock()
}

func (s *Scheduler) isStandby() bool {
	s.standbyMu.Lock()
	defer s.standbyMu.Unlock()
	return s.standby
}

// Run drives the dispatch loop until ctx is cancelled. downloads_limit
// bounds concurrent in-flight articles to the pool's total capacity plus a
// small headroom so a worker is always waiting on a freshly freed slot.
func (s *Scheduler) Run(ctx context.Context) {
	capacity := s.pool.TotalCapacity()
	if capacity <= 0 {
		capacity = 1
	}
	workerCount := capacity + 2

	jobs := make(chan articleJob, workerCount*2)
	results := make(chan articleResult, workerCount*2)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, jobs, results)
		}()
	}

	go s.collect(ctx, results)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			if s.isStandby() {
				continue
			}
			s.dispatchTick(ctx, jobs)
		}
	}
}

// dispatchTick selects the next batch of eligible articles in priority
// order and feeds them to the worker pool without blocking. Selection and
// the ArticleRunning transition happen inside DispatchEligibleArticles,
// under the queue's own lock, so this never races a result application or
// an RPC-driven mutation.
func (s *Scheduler) dispatchTick(ctx context.Context, jobs chan<- articleJob) {
	s.q.DispatchEligibleArticles(time.Now(), func(job *domain.Job, file *domain.File, article *domain.Article) bool {
		aj := articleJob{job: job, file: file, article: article, groups: file.Groups, excl: map[string]bool{}}
		select {
		case jobs <- aj:
			return true
		case <-ctx.Done():
			return false
		default:
			return false
		}
	})
}

func (s *Scheduler) worker(ctx context.Context, jobs <-chan articleJob, results chan<- articleResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case aj, ok := <-jobs:
			if !ok {
				return
			}
			results <- s.fetchAndDecode(ctx, aj)
		}
	}
}

func (s *Scheduler) fetchAndDecode(ctx context.Context, aj articleJob) articleResult {
	minLevel := aj.article.Level

	conn, err := s.pool.Lease(ctx, minLevel, aj.excl)
	if err != nil {
		return articleResult{job: aj, err: err}
	}

	broken := false
	defer func() {
		s.pool.Release(conn.ServerID(), conn, broken)
	}()

	for _, g := range aj.groups {
		if err := conn.JoinGroup(g); err != nil {
			if nntp.IsNotFound(err) {
				continue
			}
			broken = true
			return articleResult{job: aj, err: err, server: conn.ServerID()}
		}
		break
	}

	r, err := conn.RequestArticle(aj.article.MessageID)
	if err != nil {
		if !nntp.IsNotFound(err) {
			broken = true
		}
		return articleResult{job: aj, err: err, server: conn.ServerID()}
	}

	throttled := s.meter.Throttle(ctx, r)
	decoded, offset, result, err := decoding.DecodeArticle(throttled, aj.article.Size)
	if err != nil {
		broken = true
		return articleResult{job: aj, err: err, server: conn.ServerID()}
	}

	s.meter.AddBytes(int64(len(decoded)))
	return articleResult{job: aj, decoded: decoded, offset: offset, result: result, server: conn.ServerID()}
}

func (s *Scheduler) collect(ctx context.Context, results <-chan articleResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			s.apply(res)
		}
	}
}

// apply folds one worker result back onto the domain model. Every mutation
// goes through a locked queue method (§5: all readers and writers must hold
// the queue mutex); the only unlocked work here is the write itself, which
// performs I/O and must never run under the lock.
func (s *Scheduler) apply(res articleResult) {
	article := res.job.article
	file := res.job.file
	job := res.job.job

	if res.server != "" {
		s.pool.RecordOutcome(res.server, res.err == nil && res.result == decoding.ResultFinished)
	}

	switch {
	case res.err != nil && nntp.IsNotFound(res.err):
		if !s.q.RecordNotFound(article, s.pool.MaxLevel()) {
			s.onFailArticle(job, file, article)
		}

	case res.err != nil:
		if !s.q.ScheduleConnectRetry(article, s.retryInterval) {
			s.onFailArticle(job, file, article)
		}

	case res.result == decoding.ResultFinished:
		if err := s.writer.WriteArticle(job, file, article, res.decoded, res.offset); err != nil {
			s.logger.Error("scheduler: write failed for %s part %d: %v", file.Filename, article.Part, err)
			s.onFailArticle(job, file, article)
			return
		}
		if s.q.CompleteArticle(job, file, article, int64(len(res.decoded))) {
			s.onFileComplete(job, file)
		}

	default:
		if !s.q.ScheduleRetry(article, s.retryInterval) {
			s.onFailArticle(job, file, article)
		}
	}
}

func (s *Scheduler) onFailArticle(job *domain.Job, file *domain.File, article *domain.Article) {
	s.logger.Error("permanent article failure: job=%s file=%s part=%d id=%s", job.ID, file.Filename, article.Part, article.MessageID)
	if s.q.FailArticle(job, file, article) {
		s.onFileComplete(job, file)
	}
}

func (s *Scheduler) onFileComplete(job *domain.Job, file *domain.File) {
	if s.onFile != nil {
		s.onFile.OnFileComplete(job, file)
	}
	if s.q.JobComplete(job) && s.onJob != nil {
		s.onJob.OnJobComplete(job)
	}
}
