package rpc

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nzbcore/gonzbd/internal/queue"
)

// handleEditQueue decodes and applies one EditQueue action (§4.12 table)
// under the queue's own lock.
func (h *Handlers) handleEditQueue(w io.Writer, r *bufio.Reader) error {
	action, err := readString(r)
	if err != nil {
		return err
	}
	matchMode, err := readString(r)
	if err != nil {
		return err
	}
	target, err := readString(r)
	if err != nil {
		return err
	}
	param, err := readString(r)
	if err != nil {
		return err
	}

	if matchMode == "regex" {
		return h.writeErr(w, "regex not supported")
	}

	jobID, fileID := h.resolveTarget(matchMode, target)

	switch action {
	case "GroupPause":
		return h.editEachFile(w, jobID, h.Queue.PauseFile)
	case "GroupResume":
		return h.editEachFile(w, jobID, h.Queue.UnpauseFile)
	case "FilePause":
		return h.editResult(w, h.Queue.PauseFile(fileID))
	case "FileResume":
		return h.editResult(w, h.Queue.UnpauseFile(fileID))
	case "GroupDelete":
		return h.editResult(w, h.Queue.DeleteJob(jobID))
	case "FileDelete":
		return h.editResult(w, h.Queue.RemoveFile(fileID))
	case "GroupMoveTop":
		return h.editResult(w, h.Queue.MoveFile(jobID, queue.MoveTop))
	case "GroupMoveBottom":
		return h.editResult(w, h.Queue.MoveFile(jobID, queue.MoveBottom))
	case "GroupMoveUp":
		return h.editResult(w, h.Queue.MoveFile(jobID, queue.MoveUp))
	case "GroupMoveDown":
		return h.editResult(w, h.Queue.MoveFile(jobID, queue.MoveDown))
	case "GroupSetCategory", "GroupApplyCategory":
		return h.editResult(w, h.Queue.SetCategory(jobID, param))
	case "GroupSetName":
		return h.editResult(w, h.Queue.Rename(jobID, param))
	case "GroupSetPriority":
		return h.editResult(w, h.Queue.SetJobPriority(jobID, atoiSafe(param)))
	case "GroupMerge":
		srcJobID, _ := h.resolveTarget(matchMode, param)
		return h.editResult(w, h.Queue.MergeGroups(jobID, srcJobID))
	case "FileSplit":
		return h.handleSplit(w, jobID, param)
	case "GroupSetParameter":
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			return h.writeErr(w, "SetParameter expects key=value")
		}
		return h.editResult(w, h.Queue.SetParameter(jobID, key, value))
	case "FileSetPriority", "GroupPauseExtraPars":
		return h.editResult(w, h.Queue.SetPriority(fileID, true))
	case "FileClearPriority":
		return h.editResult(w, h.Queue.SetPriority(fileID, false))
	case "PostQueueDelete", "HistoryDelete", "HistoryReturn":
		// Routed to the post-processing/history collaborator; no such
		// collaborator is implemented (par2/rar semantics are out of
		// scope), so these are accepted as a no-op.
		return h.writeOK(w, "")
	default:
		return h.writeErr(w, fmt.Sprintf("unknown action %q", action))
	}
}

// resolveTarget splits a "name" match of the form "<job>/<file>" or "<job>"
// into job and file identifiers; an "id" match treats target as a bare id
// usable as either, since job and file ids are both ksuid-derived and
// never collide in practice.
func (h *Handlers) resolveTarget(matchMode, target string) (jobID, fileID string) {
	if matchMode == "id" {
		return target, target
	}
	if job, file, ok := strings.Cut(target, "/"); ok {
		j, _ := h.Queue.Get(job)
		if j == nil {
			return job, file
		}
		for _, f := range j.Files {
			if f.Filename == file {
				return j.ID, f.ID
			}
		}
		return j.ID, file
	}
	if j, ok := h.Queue.Get(target); ok {
		return j.ID, ""
	}
	return target, target
}

func (h *Handlers) editEachFile(w io.Writer, jobID string, fn func(string) error) error {
	job, ok := h.Queue.Get(jobID)
	if !ok {
		return h.writeErr(w, "job not found")
	}
	for _, f := range job.Files {
		if err := fn(f.ID); err != nil {
			return h.writeErr(w, err.Error())
		}
	}
	return h.writeOK(w, "")
}

func (h *Handlers) editResult(w io.Writer, err error) error {
	if err != nil {
		return h.writeErr(w, err.Error())
	}
	return h.writeOK(w, "")
}

func (h *Handlers) handleSplit(w io.Writer, jobID, fileCSV string) error {
	job, ok := h.Queue.Get(jobID)
	if !ok {
		return h.writeErr(w, "job not found")
	}
	ids := strings.Split(fileCSV, ",")
	newJob, err := h.Queue.SplitGroup(job.DisplayName+"_split", ids)
	if err != nil {
		return h.writeErr(w, err.Error())
	}
	return h.writeOK(w, newJob.ID)
}

func atoiSafe(s string) int {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		return -n
	}
	return n
}
