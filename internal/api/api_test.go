package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/wavecast/internal/broadcast"
	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/events"
	"github.com/friendsincode/wavecast/internal/logbuffer"
	"github.com/friendsincode/wavecast/internal/media"
	"github.com/friendsincode/wavecast/internal/models"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/queue"
)

var testFormat = codec.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

type fixture struct {
	api    *API
	router chi.Router
	state  *playback.State
	queue  *queue.Queue
	bus    *events.Bus
	logs   *logbuffer.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := playback.NewState()
	q := queue.New()
	bus := events.NewBus()
	logs := logbuffer.New(50)
	lib := media.NewLibraryWithStorage(media.NewFilesystemStorage(t.TempDir(), zerolog.Nop()), 0, zerolog.Nop())
	b := broadcast.New(state, broadcast.Options{}, bus, zerolog.Nop())
	t.Cleanup(b.Close)

	a := New(state, q, lib, b, bus, logs, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return &fixture{api: a, router: r, state: state, queue: q, bus: bus, logs: logs}
}

func (f *fixture) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) loadTrack(name string, seconds int) *playback.Track {
	t := &playback.Track{
		Seq:      1,
		EntryID:  1,
		Name:     name,
		Format:   testFormat,
		Data:     make([]byte, seconds*int(testFormat.ByteRate())),
		LoadedAt: time.Now().UTC(),
	}
	f.state.LoadTrack(t)
	return t
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func wavFile(frames int) []byte {
	data := make([]byte, frames*int(testFormat.BlockAlign()))
	return append(codec.Header(testFormat, uint32(len(data))), data...)
}

func TestEnqueue(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"plain", "song.wav", http.StatusOK, "song.wav"},
		{"first line only", "  intro.wav \nrm -rf /\n", http.StatusOK, "intro.wav"},
		{"path stripped", "../../secret/jingle.wav", http.StatusOK, "jingle.wav"},
		{"empty", "   \n", http.StatusBadRequest, "filename_required"},
		{"wrong extension", "notes.txt", http.StatusBadRequest, "invalid_filename"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(http.MethodPost, "/queue", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			out := decode(t, rr)
			if tt.status == http.StatusOK {
				if out["file"] != tt.want || out["enqueued"] != float64(1) {
					t.Fatalf("unexpected reply %v", out)
				}
				return
			}
			if out["error"] != tt.want {
				t.Fatalf("error = %v, want %s", out["error"], tt.want)
			}
		})
	}
}

func TestQueueListMoveRemove(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		f.do(http.MethodPost, "/queue", name)
	}

	rr := f.do(http.MethodGet, "/queue", "")
	var listing struct {
		Queue []queueItem `json:"queue"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Queue) != 3 || listing.Queue[2].File != "c.wav" || listing.Queue[2].Index != 2 || listing.Queue[2].ID != 3 {
		t.Fatalf("unexpected listing %+v", listing.Queue)
	}

	form := url.Values{"from": {"2"}, "to": {"0"}}
	req := httptest.NewRequest(http.MethodPost, "/queue/move", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("move status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := f.queue.List(); got[0].Reference != "c.wav" || got[1].Reference != "a.wav" {
		t.Fatalf("unexpected order after move: %+v", got)
	}

	rr = f.do(http.MethodPost, "/queue/remove?index=1", "")
	if rr.Code != http.StatusOK || decode(t, rr)["file"] != "a.wav" {
		t.Fatalf("remove reply %d %s", rr.Code, rr.Body.String())
	}
	if f.queue.Len() != 2 {
		t.Fatalf("queue length = %d", f.queue.Len())
	}

	bad := []struct {
		target string
		code   string
	}{
		{"/queue/remove?index=9", "index_out_of_range"},
		{"/queue/remove?index=-1", "invalid_index"},
		{"/queue/remove?index=x", "invalid_index"},
		{"/queue/move?from=0", "invalid_index"},
		{"/queue/move?from=0&to=5", "index_out_of_range"},
	}
	for _, b := range bad {
		rr := f.do(http.MethodPost, b.target, "")
		if rr.Code != http.StatusBadRequest || decode(t, rr)["error"] != b.code {
			t.Errorf("%s: %d %s", b.target, rr.Code, rr.Body.String())
		}
	}
	if f.queue.Len() != 2 {
		t.Fatal("malformed requests must not change the queue")
	}
}

func TestSkip(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/skip", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("idle skip status = %d", rr.Code)
	}

	sub := f.bus.Subscribe(events.EventSkipRequested)
	defer f.bus.Unsubscribe(events.EventSkipRequested, sub)

	f.loadTrack("live.wav", 2)
	rr = f.do(http.MethodPost, "/skip", "")
	if rr.Code != http.StatusOK || decode(t, rr)["status"] != "skip" {
		t.Fatalf("skip reply %d %s", rr.Code, rr.Body.String())
	}
	if !f.state.SkipPending() {
		t.Fatal("skip flag not set")
	}
	select {
	case payload := <-sub:
		if payload["track"] != "live.wav" {
			t.Fatalf("unexpected payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("skip_requested not published")
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t)

	out := decode(t, f.do(http.MethodGet, "/progress", ""))
	if out["position"] != float64(0) || out["elapsed"] != float64(0) || out["duration"] != float64(0) {
		t.Fatalf("idle progress %v", out)
	}

	f.loadTrack("half.wav", 4)
	f.state.Advance(2 * uint64(testFormat.ByteRate()))
	out = decode(t, f.do(http.MethodGet, "/progress", ""))
	if out["position"] != 0.5 || out["elapsed"] != float64(2) || out["duration"] != float64(4) || out["filename"] != "half.wav" {
		t.Fatalf("progress %v", out)
	}
}

func TestNowPlayingAndListeners(t *testing.T) {
	f := newFixture(t)
	f.loadTrack("on-air.wav", 1)
	f.queue.Enqueue("next.wav")

	out := decode(t, f.do(http.MethodGet, "/now-playing", ""))
	if out["queue_length"] != float64(1) || out["listeners"] != float64(0) {
		t.Fatalf("now playing %v", out)
	}
	next, _ := out["next"].(map[string]any)
	if next["file"] != "next.wav" {
		t.Fatalf("next = %v", out["next"])
	}

	out = decode(t, f.do(http.MethodGet, "/listeners", ""))
	if out["listeners"] != float64(0) {
		t.Fatalf("listeners %v", out)
	}
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, uploadRequest(t, "Intro.wav", wavFile(100)))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d body=%s", rr.Code, rr.Body.String())
	}
	if out := decode(t, rr); out["file"] != "Intro.wav" || out["enqueued"] != float64(1) {
		t.Fatalf("upload reply %v", out)
	}
	if f.queue.Len() != 1 {
		t.Fatal("upload must enqueue the track")
	}

	out := decode(t, f.do(http.MethodGet, "/library", ""))
	tracks, _ := out["tracks"].([]any)
	if len(tracks) != 1 || tracks[0] != "Intro.wav" {
		t.Fatalf("library %v", out)
	}

	cases := []struct {
		filename string
		content  []byte
		status   int
	}{
		{"fake.wav", []byte("definitely not audio"), http.StatusUnsupportedMediaType},
		{"song.flac", wavFile(10), http.StatusBadRequest},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, uploadRequest(t, c.filename, c.content))
		if rr.Code != c.status {
			t.Errorf("%s: status %d body=%s", c.filename, rr.Code, rr.Body.String())
		}
	}
	if f.queue.Len() != 1 {
		t.Fatal("rejected uploads must not enqueue")
	}

	rr = f.do(http.MethodDelete, "/library/Intro.wav", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status %d", rr.Code)
	}
}

type fakeHistory struct {
	records []models.PlayRecord
	err     error
	limit   int
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]models.PlayRecord, error) {
	h.limit = limit
	return h.records, h.err
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(http.MethodGet, "/history", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled history status %d", rr.Code)
	}

	h := &fakeHistory{records: []models.PlayRecord{{ID: "r1", Track: "a.wav", Outcome: models.OutcomeCompleted}}}
	f.api.SetHistory(h)

	rr := f.do(http.MethodGet, "/history?limit=5", "")
	if rr.Code != http.StatusOK || h.limit != 5 {
		t.Fatalf("history status %d limit %d", rr.Code, h.limit)
	}
	records, _ := decode(t, rr)["history"].([]any)
	if len(records) != 1 {
		t.Fatalf("history body %s", rr.Body.String())
	}

	if rr := f.do(http.MethodGet, "/history?limit=abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", rr.Code)
	}

	h.err = errors.New("boom")
	if rr := f.do(http.MethodGet, "/history", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("failing history status %d", rr.Code)
	}
}

func TestLogs(t *testing.T) {
	f := newFixture(t)
	f.logs.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "info", Message: "track loaded", Component: "playback", Fields: map[string]interface{}{"track": "a.wav"}})
	f.logs.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "warn", Message: "listener dropped", Component: "broadcast"})

	out := decode(t, f.do(http.MethodGet, "/logs?component=playback", ""))
	logs, _ := out["logs"].([]any)
	if len(logs) != 1 {
		t.Fatalf("logs %v", out)
	}
}

func TestIndexAndHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "/progress") {
		t.Fatalf("index %d", rr.Code)
	}
	if out := decode(t, f.do(http.MethodGet, "/health", "")); out["status"] != "ok" {
		t.Fatalf("health %v", out)
	}
}

func TestEventsWebsocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events?types=now_playing", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// The handler subscribes after the upgrade; publish until it is listening.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.bus.Publish(events.EventNowPlaying, events.Payload{"track": "a.wav"})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "now_playing" || msg.Payload["track"] != "a.wav" {
		t.Fatalf("unexpected message %s", data)
	}
}
