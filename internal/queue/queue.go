// Package queue holds the live set of jobs and files being downloaded: the
// single source of truth the scheduler reads from and every control-plane
// mutation (manual or RPC-driven) writes to.
package queue

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/nzbcore/gonzbd/internal/domain"
)

// Queue is the download queue (C5). Every public method takes the same
// mutex; no method performs I/O while holding it. Aggregate counters on a
// job are recomputed from its files inside the critical section so reads
// stay O(1).
type Queue struct {
	mu   sync.RWMutex
	jobs []*domain.Job
}

// New builds an empty queue.
func New() *Queue {
	return &Queue{}
}

// AddJob appends job to the end of the queue (lowest priority position for
// equal-priority jobs) and recomputes its aggregates.
func (q *Queue) AddJob(job *domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recount(job)
	q.jobs = append(q.jobs, job)
}

// RemoveFile marks a file deleted and, once every file in its job is
// deleted, removes the job from the queue. Aggregate counters on the job
// are updated in place. Returns domain.ErrFileNotFound if the id is not
// found in any job still in the queue.
func (q *Queue) RemoveFile(fileID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, file := q.locateFileLocked(fileID)
	if file == nil {
		return domain.ErrFileNotFound
	}

	file.Deleted = true
	file.Paused = true
	recount(job)

	if allDeleted(job) {
		q.removeJobLocked(job.ID)
	}
	return nil
}

// PauseFile and UnpauseFile toggle a file's paused flag and recompute the
// owning job's paused-size aggregate.
func (q *Queue) PauseFile(fileID string) error   { return q.setPaused(fileID, true) }
func (q *Queue) UnpauseFile(fileID string) error { return q.setPaused(fileID, false) }

func (q *Queue) setPaused(fileID string, paused bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, file := q.locateFileLocked(fileID)
	if file == nil {
		return domain.ErrFileNotFound
	}
	file.Paused = paused
	recount(job)
	return nil
}

// SetPriority sets a file's extra-priority flag used by the scheduler's
// selection tuple. Priority is boolean at the file level (extra vs normal);
// numeric job priority is set via SetJobPriority.
func (q *Queue) SetPriority(fileID string, extra bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, file := q.locateFileLocked(fileID)
	if file == nil {
		return domain.ErrFileNotFound
	}
	file.ExtraPriority = extra
	return nil
}

// SetJobPriority sets a job's signed integer priority (larger = earlier).
func (q *Queue) SetJobPriority(jobID string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.findJobLocked(jobID)
	if job == nil {
		return domain.ErrJobNotFound
	}
	job.Priority = priority
	return nil
}

// MoveOffset is the position a MoveFile call targets.
type MoveOffset int

const (
	MoveUp MoveOffset = iota
	MoveDown
	MoveTop
	MoveBottom
)

// MoveFile repositions a job within the queue slice, which breaks priority
// ties in manual order (the scheduler sorts by priority first, then by
// queue position).
func (q *Queue) MoveFile(jobID string, offset MoveOffset) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, j := range q.jobs {
		if j.ID == jobID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.ErrJobNotFound
	}

	switch offset {
	case MoveTop:
		q.moveTo(idx, 0)
	case MoveBottom:
		q.moveTo(idx, len(q.jobs)-1)
	case MoveUp:
		if idx > 0 {
			q.moveTo(idx, idx-1)
		}
	case MoveDown:
		if idx < len(q.jobs)-1 {
			q.moveTo(idx, idx+1)
		}
	}
	return nil
}

func (q *Queue) moveTo(from, to int) {
	job := q.jobs[from]
	q.jobs = append(q.jobs[:from], q.jobs[from+1:]...)
	q.jobs = append(q.jobs[:to], append([]*domain.Job{job}, q.jobs[to:]...)...)
}

// SplitGroup moves the named file ids out of their current job into a new
// job named name, sharing the source job's category and destination root.
func (q *Queue) SplitGroup(name string, fileIDs []string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(fileIDs) == 0 {
		return nil, domain.ErrFileNotFound
	}

	want := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		want[id] = true
	}

	var source *domain.Job
	var moved []*domain.File
	for _, job := range q.jobs {
		var keep []*domain.File
		for _, f := range job.Files {
			if want[f.ID] {
				moved = append(moved, f)
				source = job
			} else {
				keep = append(keep, f)
			}
		}
		if len(moved) > 0 {
			job.Files = keep
			recount(job)
			break
		}
	}

	if source == nil || len(moved) == 0 {
		return nil, domain.ErrFileNotFound
	}

	newJob := domain.NewJob(ksuid.New().String(), name, source.SourceName, source.Kind)
	newJob.Category = source.Category
	newJob.DestDir = source.DestDir
	newJob.Files = moved
	for _, f := range moved {
		f.JobID = newJob.ID
	}
	recount(newJob)

	q.jobs = append(q.jobs, newJob)
	return newJob, nil
}

// MergeGroups moves every file from src into dest and removes src from the
// queue. Both jobs must still be present and neither may have started
// post-processing beyond file assembly.
func (q *Queue) MergeGroups(destID, srcID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dest := q.findJobLocked(destID)
	src := q.findJobLocked(srcID)
	if dest == nil || src == nil {
		return domain.ErrJobNotFound
	}

	for _, f := range src.Files {
		f.JobID = dest.ID
	}
	dest.Files = append(dest.Files, src.Files...)
	recount(dest)

	q.removeJobLocked(src.ID)
	return nil
}

// SetCategory updates a job's category string. The caller is responsible
// for any destination-directory recomputation this implies.
func (q *Queue) SetCategory(jobID, category string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.findJobLocked(jobID)
	if job == nil {
		return domain.ErrJobNotFound
	}
	job.Category = category
	return nil
}

// Rename updates a job's display name.
func (q *Queue) Rename(jobID, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		return domain.ErrEmptyJob
	}

	job := q.findJobLocked(jobID)
	if job == nil {
		return domain.ErrJobNotFound
	}
	job.DisplayName = name
	return nil
}

// SetParameter updates one entry of a job's opaque key/value parameter map
// (§4.12 EditQueue "group SetParameter").
func (q *Queue) SetParameter(jobID, key, value string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.findJobLocked(jobID)
	if job == nil {
		return domain.ErrJobNotFound
	}
	job.Parameters[key] = value
	return nil
}

// DeleteJob marks every file in a job deleted and removes it from the
// queue, matching the effect of RemoveFile applied to each of its files.
func (q *Queue) DeleteJob(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.findJobLocked(jobID)
	if job == nil {
		return domain.ErrJobNotFound
	}
	for _, f := range job.Files {
		f.Deleted = true
		f.Paused = true
	}
	q.removeJobLocked(jobID)
	return nil
}

// CompleteJob removes a successfully finished job from the live queue. The
// caller is responsible for archiving it (job_history) before calling this,
// since once removed Get/Snapshot can no longer see it.
func (q *Queue) CompleteJob(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeJobLocked(jobID)
}

// Snapshot returns a shallow copy of the job list sorted by priority
// (descending) then queue position, matching scheduler selection order.
// Jobs and their files are returned by pointer: callers may read their
// fields but must not mutate them outside the queue's own methods.
func (q *Queue) Snapshot() []*domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*domain.Job, len(q.jobs))
	copy(out, q.jobs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Get returns the job with the given id, if still queued.
func (q *Queue) Get(jobID string) (*domain.Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job := q.findJobLocked(jobID)
	return job, job != nil
}

// RecountJob republishes a job's aggregate counters after the downloader or
// assembler mutates its files directly (e.g. on article completion).
func (q *Queue) RecountJob(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job := q.findJobLocked(jobID); job != nil {
		recount(job)
	}
}

// DispatchEligibleArticles walks the queue in scheduler selection order (job
// priority descending, then file extra_priority, then queue position) and
// hands every currently eligible article to visit, marking it ArticleRunning
// first. The whole walk runs under the queue lock so selection can never
// race a result application (CompleteArticle/FailArticle/...) or an
// RPC-driven mutation. visit must not block or perform I/O; returning false
// rolls the article back to ArticleUndefined and stops the walk (used when
// the caller's dispatch channel is full or its context is done).
func (q *Queue) DispatchEligibleArticles(now time.Time, visit func(job *domain.Job, file *domain.File, article *domain.Article) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*domain.Job, len(q.jobs))
	copy(jobs, q.jobs)
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Priority > jobs[j].Priority
	})

	for _, job := range jobs {
		if job.DeleteStatus != domain.DeleteNone {
			continue
		}

		files := make([]*domain.File, len(job.Files))
		copy(files, job.Files)
		sortFilesByPriority(files)

		for _, file := range files {
			if file.Deleted || file.Paused {
				continue
			}

			for _, article := range file.Articles {
				if article.Status != domain.ArticleUndefined {
					continue
				}
				if article.RetriesRemaining <= 0 || article.ConnectRetriesRemaining <= 0 {
					continue
				}
				if article.NextAttemptAt.After(now) {
					continue
				}

				article.Status = domain.ArticleRunning
				if !visit(job, file, article) {
					article.Status = domain.ArticleUndefined
					return
				}
			}
		}
	}
}

func sortFilesByPriority(files []*domain.File) {
	for i := 1; i < len(files); i++ {
		j := i
		for j > 0 && files[j].ExtraPriority && !files[j-1].ExtraPriority {
			files[j], files[j-1] = files[j-1], files[j]
			j--
		}
	}
}

// RecordNotFound marks article missing at its current failover level and,
// if another level remains, advances to it and resets the article for
// immediate redispatch. Returns false once every level has been tried, in
// which case the caller must call FailArticle instead.
func (q *Queue) RecordNotFound(article *domain.Article, maxLevel int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if article.MissingAtLevel == nil {
		article.MissingAtLevel = make(map[int]bool)
	}
	article.MissingAtLevel[article.Level] = true

	if article.Level >= maxLevel {
		return false
	}
	article.Level++
	article.Status = domain.ArticleUndefined
	return true
}

// ScheduleConnectRetry decrements article's connect-retry budget and, if any
// remains, resets it for redispatch no sooner than retryInterval from now.
// Returns false once the budget is exhausted, in which case the caller must
// call FailArticle instead.
func (q *Queue) ScheduleConnectRetry(article *domain.Article, retryInterval time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	article.ConnectRetriesRemaining--
	if article.ConnectRetriesRemaining <= 0 {
		return false
	}
	article.Status = domain.ArticleUndefined
	article.NextAttemptAt = time.Now().Add(retryInterval)
	return true
}

// ScheduleRetry decrements article's plain retry budget (CRC/decode
// failures) and, if any remains, resets it for redispatch no sooner than
// retryInterval from now. Returns false once the budget is exhausted, in
// which case the caller must call FailArticle instead.
func (q *Queue) ScheduleRetry(article *domain.Article, retryInterval time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	article.RetriesRemaining--
	if article.RetriesRemaining <= 0 {
		return false
	}
	article.Status = domain.ArticleUndefined
	article.NextAttemptAt = time.Now().Add(retryInterval)
	return true
}

// CompleteArticle marks one article successfully written and folds its
// bytes into the owning file and job aggregates, reporting whether the file
// has now resolved every article.
func (q *Queue) CompleteArticle(job *domain.Job, file *domain.File, article *domain.Article, size int64) (fileDone bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	article.Status = domain.ArticleFinished
	file.SuccessArticles++
	file.CompletedArticles++
	file.SuccessSize += size
	file.RemainingSize -= size
	job.SuccessArticles++
	recount(job)
	return file.Completed()
}

// FailArticle marks one article permanently failed (retries or failover
// levels exhausted) and folds the miss into the owning file and job
// aggregates, reporting whether the file has now resolved every article.
func (q *Queue) FailArticle(job *domain.Job, file *domain.File, article *domain.Article) (fileDone bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	article.Status = domain.ArticleFailed
	file.FailedArticles++
	file.MissedArticles++
	file.CompletedArticles++
	file.MissedSize += article.Size
	job.FailedArticles++
	recount(job)
	return file.Completed()
}

// JobComplete reports whether every non-deleted file in job has resolved
// every article, the condition that fires the job completion hook.
func (q *Queue) JobComplete(job *domain.Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, f := range job.Files {
		if f.Deleted {
			continue
		}
		if !f.Completed() {
			return false
		}
	}
	return true
}

func (q *Queue) findJobLocked(jobID string) *domain.Job {
	for _, j := range q.jobs {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

func (q *Queue) locateFileLocked(fileID string) (*domain.Job, *domain.File) {
	for _, job := range q.jobs {
		for _, f := range job.Files {
			if f.ID == fileID {
				return job, f
			}
		}
	}
	return nil, nil
}

func (q *Queue) removeJobLocked(jobID string) {
	for i, j := range q.jobs {
		if j.ID == jobID {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return
		}
	}
}

func allDeleted(job *domain.Job) bool {
	for _, f := range job.Files {
		if !f.Deleted {
			return false
		}
	}
	return true
}

// recount recomputes a job's size, remaining-size, paused-size,
// file-count, paused-file-count and remaining-par-count from its files.
// Invariants per the queue spec: size = Σ files.size; remaining-size = Σ
// files.remaining-size; paused-size = Σ paused files' remaining-size.
func recount(job *domain.Job) {
	var size, remaining, paused int64
	var fileCount, pausedFileCount int

	for _, f := range job.Files {
		if f.Deleted {
			continue
		}
		size += f.TotalSize
		remaining += f.RemainingSize
		fileCount++
		if f.Paused {
			pausedFileCount++
			paused += f.RemainingSize
		}
	}

	job.Size = size
	job.RemainingSize = remaining
	job.PausedSize = paused
	job.FileCount = fileCount
	job.PausedFileCount = pausedFileCount
	job.RecountParFiles()
}
