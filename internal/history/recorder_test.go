package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/config"
	"github.com/friendsincode/wavecast/internal/db"
	"github.com/friendsincode/wavecast/internal/models"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/queue"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Open(config.DatabaseSQLite, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	return database
}

// drain runs the recorder until every pending record is written.
func drain(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func testTrack(seq uint64, name string, loaded time.Time) *playback.Track {
	return &playback.Track{
		Seq:      seq,
		EntryID:  int64(seq),
		Name:     name,
		Format:   codec.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16},
		Data:     make([]byte, 16000),
		LoadedAt: loaded,
	}
}

func TestRecorderPersistsOutcomes(t *testing.T) {
	database := setupDB(t)
	rec := NewRecorder(database, "node-a", zerolog.Nop())

	base := time.Now().UTC().Add(-time.Minute)
	rec.TrackStarted(testTrack(1, "one.wav", base))
	rec.TrackEnded(testTrack(1, "one.wav", base), 16000, playback.OutcomeCompleted)
	rec.TrackEnded(testTrack(2, "two.wav", base.Add(time.Second)), 4000, playback.OutcomeSkipped)
	rec.TrackFailed(queue.Entry{ID: 3, Reference: "bad.wav"}, errors.New("decode failed"))
	drain(t, rec)

	records, err := rec.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	// Newest first: the failure happened "now".
	if records[0].Track != "bad.wav" || records[0].Outcome != models.OutcomeFailed || records[0].Error != "decode failed" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Track != "two.wav" || records[1].Outcome != models.OutcomeSkipped || records[1].BytesPlayed != 4000 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
	if records[1].Seconds != 0.25 {
		t.Fatalf("expected 0.25s played, got %v", records[1].Seconds)
	}
	if records[2].Outcome != models.OutcomeCompleted || records[2].TotalBytes != 16000 || records[2].NodeID != "node-a" {
		t.Fatalf("unexpected third record: %+v", records[2])
	}
	for _, r := range records {
		if r.ID == "" {
			t.Fatal("record without id")
		}
	}
}

func TestRecentClampsLimit(t *testing.T) {
	database := setupDB(t)
	rec := NewRecorder(database, "", zerolog.Nop())

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec.TrackEnded(testTrack(uint64(i+1), fmt.Sprintf("t%d.wav", i), base.Add(time.Duration(i)*time.Second)), 0, playback.OutcomeCompleted)
	}
	drain(t, rec)

	tests := []struct {
		limit int
		want  int
	}{
		{0, 5},
		{-1, 5},
		{2, 2},
		{1000, 5},
	}
	for _, tt := range tests {
		got, err := rec.Recent(context.Background(), tt.limit)
		if err != nil {
			t.Fatalf("recent(%d): %v", tt.limit, err)
		}
		if len(got) != tt.want {
			t.Fatalf("recent(%d) returned %d records, want %d", tt.limit, len(got), tt.want)
		}
	}
}

func TestRecorderDropsAfterShutdown(t *testing.T) {
	database := setupDB(t)
	rec := NewRecorder(database, "", zerolog.Nop())
	drain(t, rec)

	rec.TrackEnded(testTrack(1, "late.wav", time.Now().UTC()), 0, playback.OutcomeCompleted)
	if len(rec.pending) != 0 {
		t.Fatal("records must not queue after Run returned")
	}
}

func TestPrune(t *testing.T) {
	database := setupDB(t)
	rec := NewRecorder(database, "", zerolog.Nop())

	old := models.PlayRecord{Track: "old.wav", StartedAt: time.Now().Add(-48 * time.Hour), EndedAt: time.Now().Add(-47 * time.Hour), Outcome: models.OutcomeCompleted}
	fresh := models.PlayRecord{Track: "fresh.wav", StartedAt: time.Now(), EndedAt: time.Now(), Outcome: models.OutcomeCompleted}
	if err := database.Create(&old).Error; err != nil {
		t.Fatal(err)
	}
	if err := database.Create(&fresh).Error; err != nil {
		t.Fatal(err)
	}

	n, err := rec.Prune(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned record, got %d", n)
	}
	left, _ := rec.Recent(context.Background(), 0)
	if len(left) != 1 || left[0].Track != "fresh.wav" {
		t.Fatalf("unexpected remaining records: %+v", left)
	}
}
