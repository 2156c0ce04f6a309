package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/queue"
)

var testFormat = codec.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}

type mapLoader map[string][]byte

func (m mapLoader) Load(_ context.Context, ref string) (codec.Format, []byte, error) {
	data, ok := m[ref]
	if !ok {
		return codec.Format{}, nil, errors.New("no such track")
	}
	return testFormat, data, nil
}

type recordingFanout struct {
	state *State

	mu         sync.Mutex
	resets     []string
	bytes      map[string]uint64
	violations int
}

func newRecordingFanout(state *State) *recordingFanout {
	return &recordingFanout{state: state, bytes: map[string]uint64{}}
}

func (f *recordingFanout) Reset(t *Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, t.Name)
}

func (f *recordingFanout) Deliver(t *Track, start, end uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Position() < end || end > t.Len() || start > end {
		f.violations++
	}
	f.bytes[t.Name] += end - start
}

type chanObserver struct {
	started chan string
	ended   chan Outcome
	failed  chan string
}

func newChanObserver() *chanObserver {
	return &chanObserver{
		started: make(chan string, 16),
		ended:   make(chan Outcome, 16),
		failed:  make(chan string, 16),
	}
}

func (o *chanObserver) TrackStarted(t *Track) {
	select {
	case o.started <- t.Name:
	default:
	}
}

func (o *chanObserver) TrackEnded(_ *Track, _ uint64, out Outcome) {
	select {
	case o.ended <- out:
	default:
	}
}

func (o *chanObserver) TrackFailed(e queue.Entry, _ error) {
	select {
	case o.failed <- e.Reference:
	default:
	}
}

type gatePacer struct {
	state   *State
	entered chan string
	release chan struct{}
}

func (g *gatePacer) Pace(ctx context.Context, _ []byte, _ codec.Format) error {
	name := ""
	if t, _ := g.state.Current(); t != nil {
		name = t.Name
	}
	select {
	case g.entered <- name:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startClock(t *testing.T, c *Clock) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("clock did not stop")
		}
	}
}

func expect[T comparable](t *testing.T, ch <-chan T, want T) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func TestStateProgressBounds(t *testing.T) {
	s := NewState()
	if p := s.Progress(); p.Playing || p.Position != 0 || p.Duration != 0 {
		t.Fatalf("idle progress = %+v", p)
	}

	s.LoadTrack(&Track{Name: "a.wav", Format: testFormat, Data: make([]byte, 8000)})
	for _, step := range []uint64{0, 2000, 6000} {
		s.Advance(step)
		p := s.Progress()
		if p.Position < 0 || p.Position > 1 {
			t.Fatalf("ratio out of range: %v", p.Position)
		}
		if p.Elapsed > p.Duration {
			t.Fatalf("elapsed %v > duration %v", p.Elapsed, p.Duration)
		}
	}
	p := s.Progress()
	if p.Position != 1 || p.Duration != 1 || p.Filename != "a.wav" {
		t.Fatalf("final progress = %+v", p)
	}
}

func TestRequestSkipIgnoredWhenIdle(t *testing.T) {
	s := NewState()
	if s.RequestSkip() {
		t.Fatal("skip should be refused with nothing loaded")
	}
	if s.SkipPending() {
		t.Fatal("flag must stay clear")
	}
	s.LoadTrack(&Track{Name: "a", Format: testFormat, Data: []byte{1}})
	if !s.RequestSkip() || !s.SkipPending() {
		t.Fatal("skip should be accepted while playing")
	}
	if !s.consumeSkip() || s.consumeSkip() {
		t.Fatal("flag must be consumed exactly once")
	}
}

func TestClockPlaysQueueInOrder(t *testing.T) {
	state := NewState()
	q := queue.New()
	loader := mapLoader{"a": make([]byte, 1000), "b": make([]byte, 250), "c": make([]byte, 1)}
	fanout := newRecordingFanout(state)
	obs := newChanObserver()

	c := NewClock(state, q, loader, fanout, Immediate{}, Options{BlockSize: 100, IdleDelay: time.Millisecond}, zerolog.Nop())
	c.AddObserver(obs)

	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")
	stop := startClock(t, c)

	for range 3 {
		expect(t, obs.ended, OutcomeCompleted)
	}
	stop()

	fanout.mu.Lock()
	defer fanout.mu.Unlock()
	if len(fanout.resets) != 3 || fanout.resets[0] != "a" || fanout.resets[1] != "b" || fanout.resets[2] != "c" {
		t.Fatalf("resets = %v", fanout.resets)
	}
	for name, data := range loader {
		if fanout.bytes[name] != uint64(len(data)) {
			t.Fatalf("%s: delivered %d of %d bytes", name, fanout.bytes[name], len(data))
		}
	}
	if fanout.violations != 0 {
		t.Fatalf("%d deliveries ran ahead of the play position", fanout.violations)
	}
}

func TestClockSkipsUndecodableTrack(t *testing.T) {
	state := NewState()
	q := queue.New()
	loader := mapLoader{"good": make([]byte, 10), "empty": {}}
	obs := newChanObserver()

	c := NewClock(state, q, loader, newRecordingFanout(state), Immediate{}, Options{BlockSize: 100, IdleDelay: time.Millisecond}, zerolog.Nop())
	c.AddObserver(obs)

	q.Enqueue("missing")
	q.Enqueue("empty")
	q.Enqueue("good")
	stop := startClock(t, c)
	defer stop()

	expect(t, obs.failed, "missing")
	expect(t, obs.failed, "empty")
	expect(t, obs.started, "good")
}

func TestSkipDoesNotDoubleAdvance(t *testing.T) {
	state := NewState()
	q := queue.New()
	loader := mapLoader{"a": make([]byte, 1000), "b": make([]byte, 1000), "c": make([]byte, 1000)}
	pacer := &gatePacer{state: state, entered: make(chan string), release: make(chan struct{})}
	obs := newChanObserver()

	c := NewClock(state, q, loader, newRecordingFanout(state), pacer, Options{BlockSize: 100, IdleDelay: time.Millisecond}, zerolog.Nop())
	c.AddObserver(obs)
	for _, r := range []string{"a", "b", "c"} {
		q.Enqueue(r)
	}
	stop := startClock(t, c)
	defer stop()

	expect(t, pacer.entered, "a")
	if !state.RequestSkip() || !state.RequestSkip() {
		t.Fatal("skip refused while playing")
	}
	pacer.release <- struct{}{}

	expect(t, pacer.entered, "b")
	expect(t, obs.ended, OutcomeSkipped)
	pacer.release <- struct{}{}
	expect(t, pacer.entered, "b")

	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
}

// stopPacer cancels the clock once the play position reaches stopAt.
type stopPacer struct {
	state  *State
	stopAt uint64
	cancel context.CancelFunc
}

func (p stopPacer) Pace(context.Context, []byte, codec.Format) error {
	if _, pos := p.state.Current(); pos >= p.stopAt {
		p.cancel()
	}
	return nil
}

func TestShutdownOutcome(t *testing.T) {
	cases := []struct {
		name   string
		stopAt uint64
		want   Outcome
	}{
		{"mid track", 300, OutcomeSkipped},
		{"after last block", 1000, OutcomeCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := NewState()
			q := queue.New()
			q.Enqueue("a")
			obs := newChanObserver()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pacer := stopPacer{state: state, stopAt: tc.stopAt, cancel: cancel}
			c := NewClock(state, q, mapLoader{"a": make([]byte, 1000)}, newRecordingFanout(state), pacer, Options{BlockSize: 100, IdleDelay: time.Millisecond}, zerolog.Nop())
			c.AddObserver(obs)

			if err := c.Run(ctx); err != nil {
				t.Fatalf("run: %v", err)
			}
			expect(t, obs.ended, tc.want)
			if tr, _ := state.Current(); tr != nil {
				t.Fatal("track still loaded after shutdown")
			}
		})
	}
}

type fixedFallback struct{ ref string }

func (f fixedFallback) Next() (string, bool) { return f.ref, true }

func TestClockUsesFallbackWhenQueueEmpty(t *testing.T) {
	state := NewState()
	obs := newChanObserver()
	c := NewClock(state, queue.New(), mapLoader{"jingle": make([]byte, 10)}, newRecordingFanout(state), Immediate{}, Options{BlockSize: 100, IdleDelay: time.Millisecond}, zerolog.Nop())
	c.SetFallback(fixedFallback{ref: "jingle"})
	c.AddObserver(obs)

	stop := startClock(t, c)
	defer stop()

	expect(t, obs.started, "jingle")
	expect(t, obs.started, "jingle")
}

func TestWallClockPacesRealTime(t *testing.T) {
	w := NewWallClock()
	block := make([]byte, 80) // 10ms at 8kHz mono 8-bit

	start := time.Now()
	for range 5 {
		if err := w.Pace(context.Background(), block, testFormat); err != nil {
			t.Fatalf("pace: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond || elapsed > time.Second {
		t.Fatalf("5 blocks of 10ms took %s", elapsed)
	}
}

func TestWallClockHonoursCancel(t *testing.T) {
	w := NewWallClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Pace(ctx, make([]byte, 8000), testFormat)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
