/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2/wav"
)

const decodeChunk = 4096

// Decode reads a WAV container and renders it as interleaved PCM in the
// file's own sample format. Unknown RIFF chunks are skipped. Plain integer
// PCM is passed through bit for bit; other encodings are rendered from the
// decoded samples.
func Decode(r io.Reader) (Format, []byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Format{}, nil, fmt.Errorf("read wav: %w", err)
	}

	streamer, bf, err := wav.Decode(bytes.NewReader(raw))
	if err != nil {
		return Format{}, nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer streamer.Close()

	format := Format{
		SampleRate:    uint32(bf.SampleRate),
		Channels:      uint32(bf.NumChannels),
		BitsPerSample: uint32(bf.Precision * 8),
	}
	if err := format.Validate(); err != nil {
		return Format{}, nil, err
	}

	if data, ok := pcmData(raw); ok {
		// Drop a trailing partial frame.
		data = data[:len(data)-len(data)%int(format.BlockAlign())]
		if len(data) == 0 {
			return Format{}, nil, ErrEmptyTrack
		}
		return format, data, nil
	}

	// 8-bit WAV is unsigned, everything wider is signed.
	encode := bf.EncodeSigned
	if bf.Precision == 1 {
		encode = bf.EncodeUnsigned
	}

	var out bytes.Buffer
	if n := streamer.Len(); n > 0 {
		out.Grow(n * bf.Width())
	}

	samples := make([][2]float64, decodeChunk)
	frame := make([]byte, bf.Width())
	for {
		n, ok := streamer.Stream(samples)
		for i := 0; i < n; i++ {
			w := encode(frame, samples[i])
			out.Write(frame[:w])
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return Format{}, nil, fmt.Errorf("decode samples: %w", err)
	}
	if out.Len() == 0 {
		return Format{}, nil, ErrEmptyTrack
	}

	return format, out.Bytes(), nil
}

// pcmData walks the RIFF chunk list and returns the data chunk when the
// fmt chunk declares plain integer PCM. A data chunk whose declared size
// runs past the end of the file is cut at EOF.
func pcmData(raw []byte) ([]byte, bool) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, false
	}
	pcm := false
	for off := 12; off+8 <= len(raw); {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := raw[off+8:]
		if size < 0 || size > len(body) {
			size = len(body)
		}
		switch id {
		case "fmt ":
			if size < 2 {
				return nil, false
			}
			pcm = binary.LittleEndian.Uint16(body[0:2]) == formatPCM
		case "data":
			if !pcm {
				return nil, false
			}
			return body[:size], true
		}
		// Chunks are word aligned.
		off += 8 + size + size%2
	}
	return nil, false
}
