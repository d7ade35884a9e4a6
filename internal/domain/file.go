package domain

import (
	"strings"
	"sync"
)

// File is one file inside a job, corresponding to one Subject thread on
// Usenet. Article accounting invariants (Q2) are enforced by the queue
// package under the job's lock.
type File struct {
	mu sync.Mutex

	ID    string
	JobID string

	Subject           string
	Filename          string
	FilenameConfirmed bool

	Groups   []string
	Articles []*Article

	TotalSize     int64
	RemainingSize int64
	MissedSize    int64
	SuccessSize   int64
	FailedSize    int64

	TotalArticles     int
	SuccessArticles   int
	FailedArticles    int
	MissedArticles    int
	CompletedArticles int

	Paused         bool
	Deleted        bool
	ExtraPriority  bool
	ActiveDownload int

	OutputFilename string
	outputLock     sync.Mutex
	outputLockHeld bool

	IsPar bool
}

// NewFile builds a file from its parsed articles and computes TotalSize.
func NewFile(id, jobID, subject string, groups []string, articles []*Article) *File {
	f := &File{
		ID:       id,
		JobID:    jobID,
		Subject:  subject,
		Groups:   groups,
		Articles: articles,
	}
	for _, a := range articles {
		f.TotalSize += a.Size
	}
	f.RemainingSize = f.TotalSize
	f.TotalArticles = len(articles)
	return f
}

// SetFilename confirms the filename inferred from either the NZB subject or
// the first decoded yEnc header, and derives the IsPar flag.
func (f *File) SetFilename(name string, confirmed bool) {
	f.Filename = name
	f.FilenameConfirmed = confirmed
	f.IsPar = strings.HasSuffix(strings.ToLower(name), ".par2")
}

// AcquireOutputLock takes the file's output lock. Nothing in this module
// calls it; downloader.Writer serializes direct writes with its own
// per-handle mutex.
func (f *File) AcquireOutputLock() {
	f.outputLock.Lock()
}

func (f *File) ReleaseOutputLock() {
	f.outputLock.Unlock()
}

// Completed reports whether every article has resolved to a terminal state.
func (f *File) Completed() bool {
	return f.CompletedArticles == len(f.Articles)
}
