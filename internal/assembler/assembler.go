// Package assembler finalizes a file once every one of its articles has
// resolved (C7): renaming the working output to its final name, applying
// dedupe and broken-file policy, and re-evaluating job health.
package assembler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
	"github.com/nzbcore/gonzbd/internal/queue"
)

// Recorder archives a finished job so it survives a restart (§4.12 History
// command, dupe-key lookups). Implemented by *store.Store.
type Recorder interface {
	RecordCompletion(ctx context.Context, job *domain.Job) error
}

// Finalizer is implemented by the downloader's direct-write Writer. It
// closes a file's working handle, truncates to final size and renames to
// its final path.
type Finalizer interface {
	Finalize(job *domain.Job, file *domain.File, finalSize int64) (string, error)
}

// Options configures broken-file and health-gating policy (§4.7).
type Options struct {
	RenameBroken     bool
	WriteBrokenLog   bool
	CriticalHealth   int // per-mille, e.g. 900 = 90.0%
	PauseOnPoorHealth bool
}

// Assembler implements domain.FileCompletionObserver: on every file
// completion it finalizes the output, applies dedupe, and checks job
// health.
type Assembler struct {
	q        *queue.Queue
	writer   Finalizer
	logger   *logger.Logger
	opts     Options
	recorder Recorder

	mu       sync.Mutex
	seenPath map[string]map[string]bool // job.DestDir -> name (case-sensitive) -> true, for dedupe
}

// New builds an Assembler. recorder may be nil, in which case completed jobs
// are dropped from the queue without being archived to job history.
func New(q *queue.Queue, writer Finalizer, log *logger.Logger, opts Options, recorder Recorder) *Assembler {
	return &Assembler{q: q, writer: writer, logger: log, opts: opts, recorder: recorder, seenPath: make(map[string]map[string]bool)}
}

// OnFileComplete implements domain.FileCompletionObserver.
func (a *Assembler) OnFileComplete(job *domain.Job, file *domain.File) {
	if file.Deleted || job.DeleteStatus != domain.DeleteNone {
		return
	}

	broken := file.FailedArticles > 0 || file.MissedArticles > 0

	if !broken {
		if a.isDuplicate(job, file) {
			a.markAutoDeleted(job, file)
			return
		}
	}

	name := a.dedupedName(job, file)
	file.OutputFilename = name

	finalPath, err := a.writer.Finalize(job, file, file.TotalSize-file.MissedSize)
	if err != nil {
		a.logger.Error("assembler: finalize %s failed: %v", file.Filename, err)
		return
	}

	if broken {
		a.applyBrokenPolicy(job, file, finalPath)
	}

	job.CompletedFileNames = append(job.CompletedFileNames, name)
	a.evaluateHealth(job, file)
}

// OnJobComplete implements domain.JobCompletionObserver: it archives the job
// to history (so it survives a restart and is visible to the RPC History
// command) and removes it from the live queue. Real post-processing
// hand-off (par repair, unpack) lives outside this package's scope per the
// download-engine boundary.
func (a *Assembler) OnJobComplete(job *domain.Job) {
	a.logger.Info("job %s (%s) complete: %d files, %d bytes", job.ID, job.DisplayName, job.FileCount, job.Size)

	if a.recorder != nil {
		if err := a.recorder.RecordCompletion(context.Background(), job); err != nil {
			a.logger.Error("assembler: recording %s to history failed: %v", job.ID, err)
		}
	}
	a.q.CompleteJob(job.ID)
}

func (a *Assembler) isDuplicate(job *domain.Job, file *domain.File) bool {
	if job.DupeMode == domain.DupeModeForce {
		return false
	}
	name := file.Filename
	if file.FilenameConfirmed {
		_, err := os.Stat(filepath.Join(job.DestDir, name))
		return err == nil
	}
	return false
}

func (a *Assembler) markAutoDeleted(job *domain.Job, file *domain.File) {
	file.Deleted = true
	file.MissedSize += file.RemainingSize
	file.RemainingSize = 0
	a.logger.Info("assembler: %s auto-deleted as duplicate of existing file", file.Filename)
	a.q.RecountJob(job.ID)
}

// dedupedName appends _duplicateN to a filename already claimed within the
// same destination directory during this run.
func (a *Assembler) dedupedName(job *domain.Job, file *domain.File) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	claimed, ok := a.seenPath[job.DestDir]
	if !ok {
		claimed = make(map[string]bool)
		a.seenPath[job.DestDir] = claimed
	}

	key := normalizeName(file.Filename)
	if !claimed[key] {
		claimed[key] = true
		return file.Filename
	}

	ext := filepath.Ext(file.Filename)
	base := strings.TrimSuffix(file.Filename, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_duplicate%d%s", base, n, ext)
		k := normalizeName(candidate)
		if !claimed[k] {
			claimed[k] = true
			return candidate
		}
	}
}

func normalizeName(name string) string {
	if strings.EqualFold(name, strings.ToLower(name)) {
		return name
	}
	return strings.ToLower(name)
}

func (a *Assembler) applyBrokenPolicy(job *domain.Job, file *domain.File, finalPath string) {
	if a.opts.RenameBroken {
		brokenPath := finalPath + "_broken"
		if err := os.Rename(finalPath, brokenPath); err == nil {
			finalPath = brokenPath
		}
	}

	if a.opts.WriteBrokenLog {
		ok := file.TotalArticles - file.FailedArticles - file.MissedArticles
		line := fmt.Sprintf("%s (%d/%d)\n", file.Filename, ok, file.TotalArticles)
		logPath := filepath.Join(job.DestDir, "_brokenlog.txt")
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			f.WriteString(line)
			f.Close()
		}
	}
}

// evaluateHealth implements the §4.7 health formula: health = (size −
// par_size − (current_failed_size − par_current_failed_size)) * 1000 /
// (size − par_size). Par files are excluded from both numerator and
// denominator since their own loss doesn't threaten playability/extraction
// the way a media file's loss does.
func (a *Assembler) evaluateHealth(job *domain.Job, justCompleted *domain.File) {
	var size, parSize, failedSize, parFailedSize int64

	for _, f := range job.Files {
		if f.Deleted {
			continue
		}
		size += f.TotalSize
		if f.IsPar {
			parSize += f.TotalSize
			parFailedSize += f.MissedSize
		}
		failedSize += f.MissedSize
	}

	denom := size - parSize
	if denom <= 0 {
		return
	}

	health := (denom - (failedSize - parFailedSize)) * 1000 / denom

	if health >= int64(a.opts.CriticalHealth) {
		return
	}
	if job.DeleteStatus == domain.DeleteHealth {
		return
	}

	if a.opts.PauseOnPoorHealth {
		for _, f := range job.Files {
			f.Paused = true
		}
		job.Messages.Add("WARNING", "health "+strconv.FormatInt(health, 10)+" below critical threshold "+strconv.Itoa(a.opts.CriticalHealth)+"; job paused")
	} else {
		job.DeleteStatus = domain.DeleteHealth
		job.Messages.Add("ERROR", "health "+strconv.FormatInt(health, 10)+" below critical threshold "+strconv.Itoa(a.opts.CriticalHealth)+"; marked for deletion")
	}

	a.q.RecountJob(job.ID)
}
