package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func wavFile(f Format, frames int) []byte {
	data := make([]byte, frames*int(f.BlockAlign()))
	for i := range data {
		data[i] = byte(i * 7)
	}
	return append(Header(f, uint32(len(data))), data...)
}

func TestFormatByteRate(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	if f.ByteRate() != 176400 {
		t.Fatalf("byte rate = %d", f.ByteRate())
	}
	if f.BlockAlign() != 4 {
		t.Fatalf("block align = %d", f.BlockAlign())
	}
	if d := f.Duration(176400); d != time.Second {
		t.Fatalf("duration = %s", d)
	}
	if d := (Format{}).Duration(100); d != 0 {
		t.Fatalf("zero format duration = %s", d)
	}
}

func TestFormatValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Format
		ok   bool
	}{
		{"cd", Format{44100, 2, 16}, true},
		{"8bit mono", Format{8000, 1, 8}, true},
		{"24bit", Format{48000, 2, 24}, true},
		{"zero rate", Format{0, 2, 16}, false},
		{"zero channels", Format{44100, 0, 16}, false},
		{"12bit", Format{44100, 2, 12}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrUnsupportedFormat) {
				t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestStreamHeaderIsOpenEnded(t *testing.T) {
	f := Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}
	h := StreamHeader(f)
	if len(h) != HeaderSize {
		t.Fatalf("header length = %d", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[36:40]) != "data" {
		t.Fatalf("bad magic: %q", h)
	}
	if binary.LittleEndian.Uint32(h[4:8]) != 0xFFFFFFFF {
		t.Fatal("riff size should be 0xFFFFFFFF")
	}
	if binary.LittleEndian.Uint32(h[40:44]) != 0xFFFFFFFF {
		t.Fatal("data size should be 0xFFFFFFFF")
	}
	if binary.LittleEndian.Uint32(h[28:32]) != f.ByteRate() {
		t.Fatal("byte rate mismatch")
	}
}

func TestParseHeaderRoundTrip(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2, BitsPerSample: 24}
	got, dataLen, err := ParseHeader(bytes.NewReader(Header(f, 600)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != f || dataLen != 600 {
		t.Fatalf("got %v/%d", got, dataLen)
	}

	_, dataLen, err = ParseHeader(bytes.NewReader(StreamHeader(f)))
	if err != nil || dataLen != 0xFFFFFFFF {
		t.Fatalf("stream header: %d %v", dataLen, err)
	}
}

func TestParseHeaderRejectsGarbage(t *testing.T) {
	bad := make([]byte, HeaderSize)
	copy(bad, "RIFX")
	if _, _, err := ParseHeader(bytes.NewReader(bad)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, _, err := ParseHeader(bytes.NewReader([]byte("RIFF"))); err == nil {
		t.Fatal("expected short read error")
	}
}

func TestFinalizeHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	f := Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}
	if _, err := file.Write(StreamHeader(f)); err != nil {
		t.Fatal(err)
	}
	if _, err := file.Write(make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if err := FinalizeHeader(file, 100); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint32(raw[4:8]) != 136 {
		t.Fatalf("riff size = %d", binary.LittleEndian.Uint32(raw[4:8]))
	}
	if binary.LittleEndian.Uint32(raw[40:44]) != 100 {
		t.Fatalf("data size = %d", binary.LittleEndian.Uint32(raw[40:44]))
	}
}

func TestDecodePCM(t *testing.T) {
	cases := []struct {
		name   string
		f      Format
		frames int
	}{
		{"stereo 16", Format{44100, 2, 16}, 1000},
		{"mono 16", Format{22050, 1, 16}, 333},
		{"mono 8", Format{8000, 1, 8}, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, data, err := Decode(bytes.NewReader(wavFile(tc.f, tc.frames)))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if f != tc.f {
				t.Fatalf("format = %v, want %v", f, tc.f)
			}
			if want := tc.frames * int(tc.f.BlockAlign()); len(data) != want {
				t.Fatalf("data length = %d, want %d", len(data), want)
			}
		})
	}
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	if _, _, err := Decode(bytes.NewReader([]byte("ID3 this is an mp3, honest"))); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeRejectsEmptyTrack(t *testing.T) {
	f := Format{44100, 2, 16}
	if _, _, err := Decode(bytes.NewReader(Header(f, 0))); err == nil {
		t.Fatal("expected an error for a track without samples")
	}
}

func TestDecodePassesPCMThroughUnchanged(t *testing.T) {
	f := Format{44100, 2, 16}
	raw := wavFile(f, 256)
	_, data, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(data, raw[HeaderSize:]) {
		t.Fatal("decoded PCM differs from the file's data chunk")
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	f := Format{8000, 1, 16}
	plain := wavFile(f, 100)

	// Insert a LIST chunk between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 4, 0, 0, 0, 'I', 'N', 'F', 'O'}
	var raw []byte
	raw = append(raw, plain[:36]...)
	raw = append(raw, list...)
	raw = append(raw, plain[36:]...)
	binary.LittleEndian.PutUint32(raw[4:8], uint32(len(raw)-8))

	got, data, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != f {
		t.Fatalf("format = %v, want %v", got, f)
	}
	if !bytes.Equal(data, plain[HeaderSize:]) {
		t.Fatal("data chunk not recovered after LIST chunk")
	}
}
