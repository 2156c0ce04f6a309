package broadcast

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/queue"
)

type fixtureTrack struct {
	format codec.Format
	data   []byte
}

type fixtureLoader map[string]fixtureTrack

func (l fixtureLoader) Load(_ context.Context, ref string) (codec.Format, []byte, error) {
	t, ok := l[ref]
	if !ok {
		return codec.Format{}, nil, errors.New("no such track")
	}
	return t.format, t.data, nil
}

// joinPacer runs on the clock goroutine right after each Deliver. It joins a
// second listener once the named track passes joinAt and stops the clock
// after that track's last block.
type joinPacer struct {
	state  *playback.State
	b      *Broadcaster
	track  string
	joinAt uint64
	cancel context.CancelFunc

	late   *Sink
	joined uint64
}

func (p *joinPacer) Pace(context.Context, []byte, codec.Format) error {
	t, pos := p.state.Current()
	if t == nil || t.Name != p.track {
		return nil
	}
	if p.late == nil && pos >= p.joinAt {
		p.late, _ = p.b.Register(ListenerInfo{ID: "late", Transport: "test"})
		p.joined = pos
	}
	if pos >= t.Len() {
		p.cancel()
	}
	return nil
}

type outcomeObserver struct {
	ended []playback.Outcome
}

func (o *outcomeObserver) TrackStarted(*playback.Track) {}

func (o *outcomeObserver) TrackEnded(_ *playback.Track, _ uint64, out playback.Outcome) {
	o.ended = append(o.ended, out)
}

func (o *outcomeObserver) TrackFailed(queue.Entry, error) {}

func TestClockDrivesListenersAcrossTrackBoundary(t *testing.T) {
	mono := codec.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}
	stereo := codec.Format{SampleRate: 22050, Channels: 2, BitsPerSample: 16}
	a := fixtureTrack{format: mono, data: testTrack(0, 800).Data}
	b := fixtureTrack{format: stereo, data: testTrack(0, 1000).Data}
	for i := range b.data {
		b.data[i] ^= 0x55
	}

	state := playback.NewState()
	bc := New(state, Options{Buffer: 64}, nil, zerolog.Nop())
	defer bc.Close()

	q := queue.New()
	q.Enqueue("a.wav")
	q.Enqueue("b.wav")

	early, ok := bc.Register(ListenerInfo{ID: "early", Transport: "test"})
	if !ok {
		t.Fatal("register refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pacer := &joinPacer{state: state, b: bc, track: "b.wav", joinAt: 450, cancel: cancel}
	obs := &outcomeObserver{}

	loader := fixtureLoader{"a.wav": a, "b.wav": b}
	clock := playback.NewClock(state, q, loader, bc, pacer, playback.Options{BlockSize: 100, IdleDelay: time.Millisecond}, zerolog.Nop())
	clock.AddObserver(obs)

	done := make(chan error, 1)
	go func() { done <- clock.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("clock did not finish both tracks")
	}

	var want []byte
	want = append(want, codec.StreamHeader(mono)...)
	want = append(want, a.data...)
	want = append(want, codec.StreamHeader(stereo)...)
	want = append(want, b.data...)
	if got := drain(early); !bytes.Equal(got, want) {
		t.Fatalf("early listener got %d bytes, want %d", len(got), len(want))
	}

	if pacer.late == nil {
		t.Fatal("late listener never joined")
	}
	if pacer.joined != 500 {
		t.Fatalf("late listener joined at %d, want 500", pacer.joined)
	}
	got := drain(pacer.late)
	if len(got) < codec.HeaderSize || !bytes.Equal(got[:codec.HeaderSize], codec.StreamHeader(stereo)) {
		t.Fatal("late listener must start with the current track's header")
	}
	if !bytes.Equal(got[codec.HeaderSize:], b.data[pacer.joined:]) {
		t.Fatalf("late listener got %d PCM bytes, want data[%d:]", len(got)-codec.HeaderSize, pacer.joined)
	}

	if len(obs.ended) != 2 || obs.ended[0] != playback.OutcomeCompleted || obs.ended[1] != playback.OutcomeCompleted {
		t.Fatalf("outcomes = %v", obs.ended)
	}
}
