// Package domain holds the core entities of the download engine: jobs,
// files, articles, servers, connections and feed records. The queue package
// owns all mutation of these types; everything else holds references by id.
package domain

import (
	"strings"
	"sync"
	"time"
)

// JobKind distinguishes an NZB collection job from a URL job that still
// needs to be resolved into an NZB body.
type JobKind string

const (
	JobKindNZBCollection JobKind = "nzb-collection"
	JobKindURL           JobKind = "url"
)

// DeleteStatus records why a job was marked for removal.
type DeleteStatus string

const (
	DeleteNone   DeleteStatus = ""
	DeleteManual DeleteStatus = "manual"
	DeleteHealth DeleteStatus = "health"
	DeleteDupe   DeleteStatus = "dupe"
	DeleteBad    DeleteStatus = "bad"
)

// DupeMode controls how the assembler's filename-collision dedupe behaves.
type DupeMode string

const (
	DupeModeScore DupeMode = "score"
	DupeModeAll   DupeMode = "all"
	DupeModeForce DupeMode = "force"
)

// DupeAction is returned by the DupeCoordinator collaborator hook.
type DupeAction string

const (
	DupeActionAccept DupeAction = "accept"
	DupeActionManual DupeAction = "manual"
	DupeActionBad    DupeAction = "bad"
)

// Job is one NZB document or one URL that resolves to an NZB.
//
// Size and remaining-size invariants (Q1) are kept by the queue package,
// which recomputes them from the job's files on every file mutation; they
// are never recomputed on read.
type Job struct {
	mu sync.Mutex

	ID          string
	DisplayName string
	SourceName  string
	DestDir     string
	Category    string
	Priority    int
	Kind        JobKind

	Size          int64
	RemainingSize int64
	PausedSize    int64

	FileCount       int
	PausedFileCount int
	RemainingPars   int

	DeleteStatus DeleteStatus

	// Opaque collaborator enums; the core never interprets these beyond
	// storing and reporting them over RPC.
	RenameStatus  string
	ParStatus     string
	UnpackStatus  string
	CleanupStatus string
	MoveStatus    string

	DupeKey   string
	DupeScore int
	DupeMode  DupeMode

	FullContentHash     string
	FilteredContentHash string

	CompletedFileNames []string
	Parameters         map[string]string

	Messages *MessageLog

	SuccessArticles int64
	FailedArticles  int64

	Files []*File

	CreatedAt time.Time
}

// NewJob constructs a job with its message log and parameter map ready.
func NewJob(id, displayName, sourceName string, kind JobKind) *Job {
	return &Job{
		ID:          id,
		DisplayName: displayName,
		SourceName:  sourceName,
		Kind:        kind,
		DupeMode:    DupeModeScore,
		Parameters:  make(map[string]string),
		Messages:    NewMessageLog(500),
		CreatedAt:   time.Now(),
	}
}

// RecountParFiles recomputes RemainingPars from the current file list. It is
// called whenever the file set changes (split/merge/delete) since par-ness
// only depends on filename, not on download progress.
func (j *Job) RecountParFiles() {
	count := 0
	for _, f := range j.Files {
		if f.Deleted {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Filename), ".par2") {
			count++
		}
	}
	j.RemainingPars = count
}

// MessageLog is a capped ring of operator-facing log lines attached to a job.
type MessageLog struct {
	mu       sync.Mutex
	cap      int
	messages []string
}

func NewMessageLog(capacity int) *MessageLog {
	return &MessageLog{cap: capacity}
}

func (m *MessageLog) Add(format string, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, time.Now().Format(time.RFC3339)+" "+format+line)
	if len(m.messages) > m.cap {
		m.messages = m.messages[len(m.messages)-m.cap:]
	}
}

func (m *MessageLog) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}
