package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/segmentio/ksuid"

	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
	"github.com/nzbcore/gonzbd/internal/nzb"
	"github.com/nzbcore/gonzbd/internal/queue"
	"github.com/nzbcore/gonzbd/internal/speedmeter"
	"github.com/nzbcore/gonzbd/internal/store"
)

// Handlers implements every command type's fixed-field decode, queue
// mutation, and response encode.
type Handlers struct {
	Queue     *queue.Queue
	Parser    *nzb.Parser
	Meter     *speedmeter.Meter
	Store     *store.Store
	Logger    *logger.Logger
	Version   string
	OutDir    string
	Paused    *PauseFlags
	Shutdown  func()
	ReloadCfg func() error
}

// PauseFlags holds the three independent pause toggles type 2 flips.
type PauseFlags struct {
	Download bool
	Post     bool
	Scan     bool
}

// Dispatch decodes and executes one command, writing its response to w.
func (h *Handlers) Dispatch(w io.Writer, r *bufio.Reader, cmd CommandType) error {
	switch cmd {
	case TypeDownload:
		return h.handleDownload(w, r)
	case TypePauseUnpause:
		return h.handlePauseUnpause(w, r)
	case TypeList:
		return h.handleList(w, r)
	case TypeSetDownloadRate:
		return h.handleSetDownloadRate(w, r)
	case TypeEditQueue:
		return h.handleEditQueue(w, r)
	case TypeVersion:
		return h.handleVersion(w)
	case TypeWriteLog:
		return h.handleWriteLog(w, r)
	case TypeHistory:
		return h.handleHistory(w, r)
	case TypeShutdown:
		return h.handleShutdown(w)
	case TypeReload:
		return h.handleReload(w)
	case TypeDumpDebug, TypeLog, TypePostQueue, TypeScan:
		return h.handleStub(w)
	default:
		return h.writeErr(w, fmt.Sprintf("unknown command type %d", cmd))
	}
}

func (h *Handlers) writeOK(w io.Writer, text string) error {
	body := encodeBoolText(true, text)
	if err := WriteResponseHeader(w, len(body)); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func (h *Handlers) writeErr(w io.Writer, text string) error {
	body := encodeBoolText(false, text)
	if err := WriteResponseHeader(w, len(body)); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func encodeBoolText(ok bool, text string) []byte {
	var buf bytes.Buffer
	putBool(&buf, ok)
	putString(&buf, text)
	return buf.Bytes()
}

// handleDownload decodes an NZB body (or a URL string) and enqueues it
// (type 1).
func (h *Handlers) handleDownload(w io.Writer, r *bufio.Reader) error {
	displayName, err := readString(r)
	if err != nil {
		return err
	}
	category, err := readString(r)
	if err != nil {
		return err
	}
	priority, err := readInt64(r)
	if err != nil {
		return err
	}
	isURL, err := readBool(r)
	if err != nil {
		return err
	}
	content, err := readString(r)
	if err != nil {
		return err
	}

	if isURL {
		// The URL is stored in Parameters["url"] and the job is queued
		// with no files; nothing in this module fetches the URL later.
		job := domain.NewJob(ksuid.New().String(), displayName, "rpc", domain.JobKindURL)
		job.Category = category
		job.Priority = int(priority)
		job.DestDir = h.destDir(category)
		job.Parameters["url"] = content
		h.Queue.AddJob(job)
		return h.writeOK(w, job.ID)
	}

	job, err := h.Parser.Parse(strings.NewReader(content), displayName, "rpc", h.destDir(category), category)
	if err != nil {
		return h.writeErr(w, err.Error())
	}
	job.Priority = int(priority)
	h.Queue.AddJob(job)
	return h.writeOK(w, job.ID)
}

func (h *Handlers) destDir(category string) string {
	if category == "" {
		return h.OutDir
	}
	return h.OutDir + "/" + category
}

// handlePauseUnpause flips one of download/post/scan (type 2).
func (h *Handlers) handlePauseUnpause(w io.Writer, r *bufio.Reader) error {
	target, err := readString(r)
	if err != nil {
		return err
	}
	pause, err := readBool(r)
	if err != nil {
		return err
	}

	switch target {
	case "download":
		h.Paused.Download = pause
	case "post":
		h.Paused.Post = pause
	case "scan":
		h.Paused.Scan = pause
	default:
		return h.writeErr(w, fmt.Sprintf("unknown pause target %q", target))
	}
	return h.writeOK(w, "")
}

// handleSetDownloadRate applies a new speed limit in bytes/sec (type 4).
func (h *Handlers) handleSetDownloadRate(w io.Writer, r *bufio.Reader) error {
	rate, err := readInt64(r)
	if err != nil {
		return err
	}
	h.Meter.SetLimit(rate)
	return h.writeOK(w, "")
}

// handleVersion returns the build version string (type 10).
func (h *Handlers) handleVersion(w io.Writer) error {
	return h.writeOK(w, h.Version)
}

// handleWriteLog appends an operator message to a job's message log (type 12).
func (h *Handlers) handleWriteLog(w io.Writer, r *bufio.Reader) error {
	jobID, err := readString(r)
	if err != nil {
		return err
	}
	level, err := readString(r)
	if err != nil {
		return err
	}
	text, err := readString(r)
	if err != nil {
		return err
	}

	job, ok := h.Queue.Get(jobID)
	if !ok {
		return h.writeErr(w, "job not found")
	}
	job.Messages.Add(level, text)
	return h.writeOK(w, "")
}

// handleShutdown terminates the server process (type 8).
func (h *Handlers) handleShutdown(w io.Writer) error {
	if err := h.writeOK(w, "shutting down"); err != nil {
		return err
	}
	if h.Shutdown != nil {
		go h.Shutdown()
	}
	return nil
}

// handleReload re-reads configuration (type 9).
func (h *Handlers) handleReload(w io.Writer) error {
	if h.ReloadCfg == nil {
		return h.writeOK(w, "")
	}
	if err := h.ReloadCfg(); err != nil {
		return h.writeErr(w, err.Error())
	}
	return h.writeOK(w, "")
}

// handleHistory enumerates completed/deleted job history (type 14).
func (h *Handlers) handleHistory(w io.Writer, r *bufio.Reader) error {
	limit, err := readInt64(r)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = 100
	}

	entries, err := h.Store.History(context.Background(), int(limit))
	if err != nil {
		return h.writeErr(w, err.Error())
	}

	var buf bytes.Buffer
	putBool(&buf, true)
	putUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		putString(&buf, e.ID)
		putString(&buf, e.DisplayName)
		putString(&buf, e.Category)
		putInt64(&buf, e.Size)
		putString(&buf, string(e.DeleteStatus))
		putInt64(&buf, e.CompletedAt.Unix())
	}

	if err := WriteResponseHeader(w, buf.Len()); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// handleList dumps queue/file state, optionally filtered by a regex
// matched against either the job name or "<job>/<file>" (type 3).
func (h *Handlers) handleList(w io.Writer, r *bufio.Reader) error {
	pattern, err := readString(r)
	if err != nil {
		return err
	}

	var re *regexp.Regexp
	if pattern != "" {
		re, err = regexp.Compile(pattern)
		if err != nil {
			return h.writeErr(w, "regex not supported")
		}
	}

	jobs := h.Queue.Snapshot()

	var buf bytes.Buffer
	putBool(&buf, true)

	jobCountPos := buf.Len()
	putUint32(&buf, 0)
	jobCount := uint32(0)

	for _, job := range jobs {
		if re != nil && !re.MatchString(job.DisplayName) {
			matchesAnyFile := false
			for _, f := range job.Files {
				if re.MatchString(job.DisplayName + "/" + f.Filename) {
					matchesAnyFile = true
					break
				}
			}
			if !matchesAnyFile {
				continue
			}
		}

		jobCount++
		putString(&buf, job.ID)
		putString(&buf, job.DisplayName)
		putString(&buf, job.Category)
		putInt64(&buf, job.Size)
		putInt64(&buf, job.RemainingSize)
		putUint32(&buf, uint32(job.Priority))
		putString(&buf, string(job.DeleteStatus))
		putUint32(&buf, uint32(len(job.Files)))

		for _, f := range job.Files {
			putString(&buf, f.Filename)
			putInt64(&buf, f.TotalSize)
			putInt64(&buf, f.RemainingSize)
			putBool(&buf, f.Paused)
		}
	}

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[jobCountPos:jobCountPos+4], jobCount)

	if err := WriteResponseHeader(w, len(out)); err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// handleStub answers commands whose backing subsystem is out of scope
// (par repair / extraction / directory scan collaborators) with an
// empty-but-successful response rather than an error, since the protocol
// still needs to be a valid no-op for clients that probe these.
func (h *Handlers) handleStub(w io.Writer) error {
	return h.writeOK(w, "")
}
