/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/broadcast"
	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/events"
	"github.com/friendsincode/wavecast/internal/logbuffer"
	"github.com/friendsincode/wavecast/internal/media"
	"github.com/friendsincode/wavecast/internal/models"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/queue"
	"github.com/friendsincode/wavecast/internal/version"
)

// maxFilenameBody bounds the raw POST /queue body.
const maxFilenameBody = 4 << 10

// Library is the media store behind uploads and listings.
type Library interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, ref string) error
	MaxSize() int64
}

// History reads the play log.
type History interface {
	Recent(ctx context.Context, limit int) ([]models.PlayRecord, error)
}

// EventSource is the bus the API publishes to and relays from.
type EventSource interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// API exposes the control surface over HTTP.
type API struct {
	state       *playback.State
	queue       *queue.Queue
	library     Library
	broadcaster *broadcast.Broadcaster
	bus         EventSource
	history     History
	logBuffer   *logbuffer.Buffer
	logger      zerolog.Logger
}

// New creates the API router wrapper.
func New(state *playback.State, q *queue.Queue, library Library, broadcaster *broadcast.Broadcaster, bus EventSource, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		state:       state,
		queue:       q,
		library:     library,
		broadcaster: broadcaster,
		bus:         bus,
		logBuffer:   logBuf,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// SetHistory enables GET /history.
func (a *API) SetHistory(h History) {
	a.history = h
}

// Routes registers the control endpoints. The audio endpoints are mounted
// by the server because they bypass the request middleware.
func (a *API) Routes(r chi.Router) {
	r.Get("/", a.handleIndex)
	r.Get("/health", a.handleHealth)
	r.Get("/version", a.handleVersion)

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", a.handleQueueList)
		r.Post("/", a.handleEnqueue)
		r.Post("/move", a.handleQueueMove)
		r.Post("/remove", a.handleQueueRemove)
	})
	r.Post("/skip", a.handleSkip)
	r.Get("/progress", a.handleProgress)
	r.Get("/now-playing", a.handleNowPlaying)
	r.Get("/listeners", a.handleListeners)
	r.Get("/history", a.handleHistory)

	r.Post("/upload", a.handleUpload)
	r.Route("/library", func(r chi.Router) {
		r.Get("/", a.handleLibraryList)
		r.Delete("/{name}", a.handleLibraryDelete)
	})

	r.Get("/logs", a.handleLogs)
	r.Get("/ws/events", a.handleEvents)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	if !a.state.RequestSkip() {
		writeError(w, http.StatusConflict, "nothing_playing")
		return
	}
	p := a.state.Progress()
	a.bus.Publish(events.EventSkipRequested, events.Payload{
		"track":   p.Filename,
		"elapsed": p.Elapsed,
	})
	a.logger.Info().Str("track", p.Filename).Msg("skip requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "skip"})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.state.Progress())
}

func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"progress":     a.state.Progress(),
		"listeners":    a.broadcaster.Count(),
		"queue_length": a.queue.Len(),
	}
	if next := a.queue.List(); len(next) > 0 {
		resp["next"] = next[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListeners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.broadcaster.Stats())
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}
	records, err := a.history.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := a.library.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	name, err := a.library.Upload(r.Context(), header.Filename, file)
	if err != nil {
		status, code := uploadError(err)
		if status == http.StatusInternalServerError {
			a.logger.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		}
		writeError(w, status, code)
		return
	}

	entry := a.queue.Enqueue(name)
	a.logger.Info().Str("track", name).Int64("entry_id", entry.ID).Msg("uploaded and enqueued")
	writeJSON(w, http.StatusOK, map[string]any{"enqueued": entry.ID, "file": entry.Reference})
}

func uploadError(err error) (int, string) {
	switch {
	case errors.Is(err, media.ErrInvalidName):
		return http.StatusBadRequest, "invalid_filename"
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, codec.ErrUnsupportedFormat), errors.Is(err, codec.ErrEmptyTrack):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	default:
		return http.StatusInternalServerError, "storage_error"
	}
}

func (a *API) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	names, err := a.library.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("library list failed")
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": names})
}

func (a *API) handleLibraryDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.library.Delete(r.Context(), name); err != nil {
		if errors.Is(err, media.ErrInvalidName) {
			writeError(w, http.StatusBadRequest, "invalid_filename")
			return
		}
		a.logger.Error().Err(err).Str("track", name).Msg("library delete failed")
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "file": name})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_unavailable")
		return
	}
	q := r.URL.Query()
	query := logbuffer.Query{
		Level:     q.Get("level"),
		Component: q.Get("component"),
		Track:     q.Get("track"),
		Search:    q.Get("search"),
		Limit:     100,
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			query.Limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": a.logBuffer.Find(query)})
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
