/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/friendsincode/wavecast/internal/media"
	"github.com/friendsincode/wavecast/internal/queue"
)

type queueItem struct {
	ID    int64  `json:"id"`
	Index int    `json:"index"`
	File  string `json:"file"`
}

func (a *API) handleQueueList(w http.ResponseWriter, r *http.Request) {
	entries := a.queue.List()
	items := make([]queueItem, len(entries))
	for i, e := range entries {
		items[i] = queueItem{ID: e.ID, Index: i, File: e.Reference}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": items})
}

// handleEnqueue takes the filename as the raw request body. Only the first
// line counts, surrounding whitespace is ignored.
func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFilenameBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	raw := strings.TrimSpace(string(body))
	if i := strings.IndexAny(raw, "\r\n"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if raw == "" {
		writeError(w, http.StatusBadRequest, "filename_required")
		return
	}
	name, err := media.SanitizeName(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filename")
		return
	}

	entry := a.queue.Enqueue(name)
	a.logger.Info().Str("track", name).Int64("entry_id", entry.ID).Msg("enqueued")
	writeJSON(w, http.StatusOK, map[string]any{"enqueued": entry.ID, "file": entry.Reference})
}

func (a *API) handleQueueMove(w http.ResponseWriter, r *http.Request) {
	from, okFrom := formIndex(r, "from")
	to, okTo := formIndex(r, "to")
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	if err := a.queue.Move(from, to); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "moved", "from": from, "to": to})
}

func (a *API) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	index, ok := formIndex(r, "index")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	entry, err := a.queue.Remove(index)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed", "index": index, "file": entry.Reference})
}

// formIndex reads a non-negative integer from the query string or a
// urlencoded body.
func formIndex(r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(r.FormValue(key)))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func writeQueueError(w http.ResponseWriter, err error) {
	if errors.Is(err, queue.ErrIndexOutOfRange) {
		writeError(w, http.StatusBadRequest, "index_out_of_range")
		return
	}
	writeError(w, http.StatusInternalServerError, "queue_error")
}
