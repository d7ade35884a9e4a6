// Package downloader implements direct-write article persistence: each
// decoded article is written straight into its file's final-shaped output
// at the offset its yEnc part header reported.
package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nzbcore/gonzbd/internal/domain"
)

type handle struct {
	mu   sync.Mutex
	file *os.File
}

// Writer implements scheduler.ArticleWriter by writing each article at its
// byte offset into a per-file handle cache, the way the teacher's
// FileWriter multiplexes concurrent WriteAt calls onto one *os.File per
// path.
type Writer struct {
	mu      sync.RWMutex
	handles map[string]*handle
}

// NewWriter builds an empty writer.
func NewWriter() *Writer {
	return &Writer{handles: make(map[string]*handle)}
}

// WriteArticle writes a decoded article's bytes at offset into the file's
// output path, creating the handle on first use. The file is not pre-sized
// here; it grows as articles are written.
func (w *Writer) WriteArticle(job *domain.Job, file *domain.File, article *domain.Article, data []byte, offset int64) error {
	path := outputPath(job, file)

	h, err := w.getOrCreate(path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("downloader: write %s at %d: %w", path, offset, err)
	}
	return nil
}

func outputPath(job *domain.Job, file *domain.File) string {
	name := file.OutputFilename
	if name == "" {
		name = file.Filename
	}
	return filepath.Join(job.DestDir, name+".part")
}

// PreAllocate creates (or reuses) the file's part handle and truncates it
// to size, producing a sparse file on platforms that support it so direct
// writes never need to extend the file mid-download.
func (w *Writer) PreAllocate(job *domain.Job, file *domain.File) error {
	path := outputPath(job, file)
	h, err := w.getOrCreate(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Truncate(file.TotalSize)
}

// Finalize closes a file's handle, truncates it to its actual decoded size
// (dropping any pre-allocated padding beyond what articles produced), and
// renames it to its final name. Called by the assembler once every article
// in the file has resolved.
func (w *Writer) Finalize(job *domain.Job, file *domain.File, finalSize int64) (string, error) {
	path := outputPath(job, file)

	w.mu.Lock()
	h, ok := w.handles[path]
	if ok {
		delete(w.handles, path)
	}
	w.mu.Unlock()

	if ok {
		h.mu.Lock()
		if finalSize > 0 {
			_ = h.file.Truncate(finalSize)
		}
		h.file.Sync()
		h.file.Close()
		h.mu.Unlock()
	}

	name := file.OutputFilename
	if name == "" {
		name = file.Filename
	}
	finalPath := filepath.Join(job.DestDir, name)

	if err := os.MkdirAll(job.DestDir, 0o755); err != nil {
		return "", fmt.Errorf("downloader: mkdir %s: %w", job.DestDir, err)
	}
	if err := os.Rename(path, finalPath); err != nil {
		return "", fmt.Errorf("downloader: finalize rename %s -> %s: %w", path, finalPath, err)
	}
	return finalPath, nil
}

// CloseAll force-closes every open handle, used on shutdown.
func (w *Writer) CloseAll() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.handles))
	for p := range w.handles {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		w.mu.Lock()
		h, ok := w.handles[p]
		if ok {
			delete(w.handles, p)
		}
		w.mu.Unlock()
		if ok {
			h.mu.Lock()
			h.file.Sync()
			h.file.Close()
			h.mu.Unlock()
		}
	}
}

func (w *Writer) getOrCreate(path string) (*handle, error) {
	w.mu.RLock()
	h, ok := w.handles[path]
	w.mu.RUnlock()
	if ok {
		return h, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if h, ok = w.handles[path]; ok {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("downloader: mkdir for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("downloader: open %s: %w", path, err)
	}

	h = &handle{file: f}
	w.handles[path] = h
	return h, nil
}
