package domain

import "errors"

// Sentinel errors shared across the queue, scheduler and RPC layers. The
// per-article network/decode error kinds (ConnectError, NotFound, CrcError,
// ArticleIncomplete) live in internal/nntp and internal/decoding, closer to
// where they are classified.
var (
	// ErrJobNotFound is returned when an RPC or queue operation names a job
	// id that is not (or no longer) in the queue.
	ErrJobNotFound = errors.New("job not found")

	// ErrFileNotFound is returned when a file id does not resolve within its
	// job, including after a split/merge has renumbered files.
	ErrFileNotFound = errors.New("file not found")

	// ErrServerNotFound names an unconfigured server id. No code in this
	// module returns it.
	ErrServerNotFound = errors.New("server not found")

	// ErrQueueFull names an exceeded job limit. No code in this module
	// returns it; the queue has no job limit.
	ErrQueueFull = errors.New("queue is full")

	// ErrInvalidPriority names an out-of-range priority. No code in this
	// module returns it; priorities are not range-checked.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrEmptyJob is returned when a parsed NZB yields zero usable files.
	ErrEmptyJob = errors.New("job has no files")
)
