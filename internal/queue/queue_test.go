package queue

import (
	"testing"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

func newTestJob(id, name string, fileSizes ...int64) *domain.Job {
	job := domain.NewJob(id, name, "test", domain.JobKindNZBCollection)
	for i, size := range fileSizes {
		f := domain.NewFile(id+"-f"+string(rune('0'+i)), id, "subject", nil, []*domain.Article{
			{Part: 1, MessageID: "m1", Size: size},
		})
		f.Filename = name
		job.Files = append(job.Files, f)
	}
	return job
}

func TestAddJobAndSnapshot(t *testing.T) {
	q := New()
	job := newTestJob("job1", "release.one", 100, 200)
	q.AddJob(job)

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 job, got %d", len(snap))
	}
	if snap[0].Size != 300 {
		t.Fatalf("expected recomputed size 300, got %d", snap[0].Size)
	}
	if snap[0].FileCount != 2 {
		t.Fatalf("expected file count 2, got %d", snap[0].FileCount)
	}
}

func TestRemoveFileRemovesJobWhenAllDeleted(t *testing.T) {
	q := New()
	job := newTestJob("job1", "release.one", 100)
	q.AddJob(job)

	fileID := job.Files[0].ID
	if err := q.RemoveFile(fileID); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	if _, ok := q.Get("job1"); ok {
		t.Fatalf("expected job to be removed once its only file is deleted")
	}
}

func TestRemoveFileUnknownID(t *testing.T) {
	q := New()
	if err := q.RemoveFile("nope"); err != domain.ErrFileNotFound {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestPauseUnpauseFileUpdatesAggregates(t *testing.T) {
	q := New()
	job := newTestJob("job1", "release.one", 100, 200)
	q.AddJob(job)

	fileID := job.Files[0].ID
	if err := q.PauseFile(fileID); err != nil {
		t.Fatalf("PauseFile: %v", err)
	}

	snap, _ := q.Get("job1")
	if snap.PausedFileCount != 1 {
		t.Fatalf("expected 1 paused file, got %d", snap.PausedFileCount)
	}
	if snap.PausedSize != 100 {
		t.Fatalf("expected paused size 100, got %d", snap.PausedSize)
	}

	if err := q.UnpauseFile(fileID); err != nil {
		t.Fatalf("UnpauseFile: %v", err)
	}
	snap, _ = q.Get("job1")
	if snap.PausedFileCount != 0 {
		t.Fatalf("expected 0 paused files after unpause, got %d", snap.PausedFileCount)
	}
}

func TestMoveFileReordersQueue(t *testing.T) {
	q := New()
	q.AddJob(newTestJob("job1", "first", 10))
	q.AddJob(newTestJob("job2", "second", 10))
	q.AddJob(newTestJob("job3", "third", 10))

	if err := q.MoveFile("job3", MoveTop); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	snap := q.Snapshot()
	if snap[0].ID != "job3" {
		t.Fatalf("expected job3 at top, got %s", snap[0].ID)
	}
}

func TestSplitGroupMovesFilesToNewJob(t *testing.T) {
	q := New()
	job := newTestJob("job1", "release.one", 100, 200, 300)
	q.AddJob(job)

	moveID := job.Files[1].ID
	newJob, err := q.SplitGroup("release.one.part2", []string{moveID})
	if err != nil {
		t.Fatalf("SplitGroup: %v", err)
	}
	if newJob.Size != 200 {
		t.Fatalf("expected split job size 200, got %d", newJob.Size)
	}

	orig, _ := q.Get("job1")
	if orig.FileCount != 2 {
		t.Fatalf("expected original job to retain 2 files, got %d", orig.FileCount)
	}
}

func TestMergeGroupsCombinesFiles(t *testing.T) {
	q := New()
	dest := newTestJob("dest", "dest.release", 100)
	src := newTestJob("src", "src.release", 200)
	q.AddJob(dest)
	q.AddJob(src)

	if err := q.MergeGroups("dest", "src"); err != nil {
		t.Fatalf("MergeGroups: %v", err)
	}

	merged, ok := q.Get("dest")
	if !ok {
		t.Fatalf("expected dest job to remain")
	}
	if merged.Size != 300 {
		t.Fatalf("expected merged size 300, got %d", merged.Size)
	}
	if _, ok := q.Get("src"); ok {
		t.Fatalf("expected src job to be removed after merge")
	}
}

func TestSetParameterAndDeleteJob(t *testing.T) {
	q := New()
	job := newTestJob("job1", "release.one", 100)
	q.AddJob(job)

	if err := q.SetParameter("job1", "category", "tv"); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	got, _ := q.Get("job1")
	if got.Parameters["category"] != "tv" {
		t.Fatalf("expected parameter to be set, got %q", got.Parameters["category"])
	}

	if err := q.DeleteJob("job1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, ok := q.Get("job1"); ok {
		t.Fatalf("expected job to be gone after DeleteJob")
	}
}

func TestCompleteJobRemovesFromQueue(t *testing.T) {
	q := New()
	q.AddJob(newTestJob("job1", "release.one", 100))

	q.CompleteJob("job1")
	if _, ok := q.Get("job1"); ok {
		t.Fatalf("expected job to be removed after CompleteJob")
	}
}

func newDispatchTestJob(id, name string) (*domain.Job, *domain.File, *domain.Article) {
	article := domain.NewArticle(1, "m1", 100)
	f := domain.NewFile(id+"-f0", id, "subject", nil, []*domain.Article{article})
	f.Filename = name
	job := domain.NewJob(id, name, "test", domain.JobKindNZBCollection)
	job.Files = append(job.Files, f)
	return job, f, article
}

func TestDispatchEligibleArticlesSkipsIneligible(t *testing.T) {
	q := New()
	job, file, article := newDispatchTestJob("job1", "release.one")
	q.AddJob(job)

	visited := 0
	q.DispatchEligibleArticles(time.Now(), func(j *domain.Job, f *domain.File, a *domain.Article) bool {
		visited++
		if a != article {
			t.Fatalf("unexpected article visited")
		}
		return true
	})
	if visited != 1 {
		t.Fatalf("expected 1 eligible article, got %d", visited)
	}
	if article.Status != domain.ArticleRunning {
		t.Fatalf("expected article marked running, got %v", article.Status)
	}

	// Already running: a second tick must not redispatch it.
	visited = 0
	q.DispatchEligibleArticles(time.Now(), func(j *domain.Job, f *domain.File, a *domain.Article) bool {
		visited++
		return true
	})
	if visited != 0 {
		t.Fatalf("expected running article to be skipped, got %d visits", visited)
	}

	file.Paused = true
	article.Status = domain.ArticleUndefined
	visited = 0
	q.DispatchEligibleArticles(time.Now(), func(j *domain.Job, f *domain.File, a *domain.Article) bool {
		visited++
		return true
	})
	if visited != 0 {
		t.Fatalf("expected paused file's article to be skipped, got %d visits", visited)
	}
}

func TestDispatchEligibleArticlesHonorsNextAttemptAt(t *testing.T) {
	q := New()
	job, _, article := newDispatchTestJob("job1", "release.one")
	q.AddJob(job)
	article.NextAttemptAt = time.Now().Add(time.Hour)

	visited := 0
	q.DispatchEligibleArticles(time.Now(), func(j *domain.Job, f *domain.File, a *domain.Article) bool {
		visited++
		return true
	})
	if visited != 0 {
		t.Fatalf("expected article not yet due to be skipped, got %d visits", visited)
	}

	visited = 0
	q.DispatchEligibleArticles(article.NextAttemptAt.Add(time.Second), func(j *domain.Job, f *domain.File, a *domain.Article) bool {
		visited++
		return true
	})
	if visited != 1 {
		t.Fatalf("expected article to become eligible once due, got %d visits", visited)
	}
}

func TestDispatchEligibleArticlesRollsBackOnRejectedVisit(t *testing.T) {
	q := New()
	job, _, article := newDispatchTestJob("job1", "release.one")
	q.AddJob(job)

	q.DispatchEligibleArticles(time.Now(), func(j *domain.Job, f *domain.File, a *domain.Article) bool {
		return false
	})
	if article.Status != domain.ArticleUndefined {
		t.Fatalf("expected article rolled back to undefined, got %v", article.Status)
	}
}

func TestRecordNotFoundAdvancesLevelUntilExhausted(t *testing.T) {
	q := New()
	article := domain.NewArticle(1, "m1", 100)

	if !q.RecordNotFound(article, 1) {
		t.Fatalf("expected level to advance")
	}
	if article.Level != 1 {
		t.Fatalf("expected level 1, got %d", article.Level)
	}
	if article.Status != domain.ArticleUndefined {
		t.Fatalf("expected article reset for redispatch")
	}
	if !article.MissingAtLevel[0] {
		t.Fatalf("expected level 0 recorded as missing")
	}

	if q.RecordNotFound(article, 1) {
		t.Fatalf("expected no more levels to try")
	}
}

func TestScheduleConnectRetrySetsNextAttemptAt(t *testing.T) {
	q := New()
	article := domain.NewArticle(1, "m1", 100)
	article.ConnectRetriesRemaining = 1

	before := time.Now()
	if q.ScheduleConnectRetry(article, time.Minute) {
		t.Fatalf("expected retry budget to be exhausted")
	}

	article.ConnectRetriesRemaining = 2
	if !q.ScheduleConnectRetry(article, time.Minute) {
		t.Fatalf("expected retry to be scheduled")
	}
	if article.ConnectRetriesRemaining != 1 {
		t.Fatalf("expected budget decremented, got %d", article.ConnectRetriesRemaining)
	}
	if !article.NextAttemptAt.After(before) {
		t.Fatalf("expected NextAttemptAt to be set in the future")
	}
}

func TestCompleteArticleUpdatesAggregatesAndReportsFileDone(t *testing.T) {
	q := New()
	job, file, article := newDispatchTestJob("job1", "release.one")
	q.AddJob(job)
	article.Status = domain.ArticleRunning

	done := q.CompleteArticle(job, file, article, 100)
	if !done {
		t.Fatalf("expected file to be reported complete")
	}
	if article.Status != domain.ArticleFinished {
		t.Fatalf("expected article finished, got %v", article.Status)
	}
	if file.SuccessArticles != 1 || file.CompletedArticles != 1 {
		t.Fatalf("expected file aggregates updated, got success=%d completed=%d", file.SuccessArticles, file.CompletedArticles)
	}
	if !q.JobComplete(job) {
		t.Fatalf("expected job to be complete")
	}
}

func TestFailArticleUpdatesAggregatesAndReportsFileDone(t *testing.T) {
	q := New()
	job, file, article := newDispatchTestJob("job1", "release.one")
	q.AddJob(job)
	article.Status = domain.ArticleRunning

	done := q.FailArticle(job, file, article)
	if !done {
		t.Fatalf("expected file to be reported complete")
	}
	if article.Status != domain.ArticleFailed {
		t.Fatalf("expected article failed, got %v", article.Status)
	}
	if file.FailedArticles != 1 || file.MissedArticles != 1 {
		t.Fatalf("expected file aggregates updated, got failed=%d missed=%d", file.FailedArticles, file.MissedArticles)
	}
}

func TestSnapshotOrdersByPriorityDescending(t *testing.T) {
	q := New()
	low := newTestJob("low", "low.release", 10)
	low.Priority = 0
	high := newTestJob("high", "high.release", 10)
	high.Priority = 10
	q.AddJob(low)
	q.AddJob(high)

	snap := q.Snapshot()
	if snap[0].ID != "high" {
		t.Fatalf("expected higher priority job first, got %s", snap[0].ID)
	}
}
