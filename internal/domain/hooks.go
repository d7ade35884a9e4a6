package domain

// DupeCoordinator decides whether a newly completed (or newly queued) job is
// a duplicate of one already known, using the job's dupe key/score/mode.
// No type in this module implements it and the queue package does not call
// it; jobs are enqueued without a dupe check.
type DupeCoordinator interface {
	// Evaluate returns the DupeAction to take for a job given its dupe key,
	// score and mode, compared against history the coordinator maintains.
	Evaluate(dupeKey string, score int, mode DupeMode) DupeAction

	// Record stores the outcome of a completed job so later duplicates can
	// be evaluated against it.
	Record(job *Job)
}

// FileCompletionObserver is notified once a file's last article has resolved
// to a terminal state. The assembler implements it to finalize the file and
// run health checks without coupling the queue to them directly.
type FileCompletionObserver interface {
	OnFileComplete(job *Job, file *File)
}

// JobCompletionObserver is notified once every file in a job has reached a
// terminal state (completed, deleted, or permanently missing), after
// assembly has run. Used to drive post-processing hand-off and feed history
// updates.
type JobCompletionObserver interface {
	OnJobComplete(job *Job)
}
