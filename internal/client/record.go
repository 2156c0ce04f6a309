/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/friendsincode/wavecast/internal/codec"
)

// ErrFormatChanged ends a recording when the next track's format differs
// from the one already written to the file.
var ErrFormatChanged = errors.New("client: stream format changed")

// streamMagic opens every header the server sends: RIFF, an open-ended
// length, WAVE.
var streamMagic = []byte("RIFF\xff\xff\xff\xffWAVE")

const recordChunk = 32 << 10

// Recording summarises a finished Record call.
type Recording struct {
	Format codec.Format
	Bytes  uint32
	Tracks int
}

// Record connects to /audio and writes the stream to w as one WAV file.
// Headers at track boundaries are dropped while the format stays the
// same. When the stream ends or ctx is cancelled the header is rewritten
// with the true data length.
func (c *Client) Record(ctx context.Context, w io.WriteSeeker) (Recording, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/audio", "", nil)
	if err != nil {
		return Recording{}, err
	}
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return Recording{}, fmt.Errorf("connect /audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Recording{}, decodeError(resp)
	}

	format, _, err := codec.ParseHeader(resp.Body)
	if err != nil {
		return Recording{}, err
	}
	if _, err := w.Write(codec.Header(format, 0)); err != nil {
		return Recording{}, fmt.Errorf("write header: %w", err)
	}

	rec := &recorder{w: w, format: format, tracks: 1}
	streamErr := rec.copy(resp.Body)
	if ctx.Err() != nil && !errors.Is(streamErr, ErrFormatChanged) {
		// Cancellation is how a listener stops recording.
		streamErr = nil
	}

	dataLen := rec.written - rec.written%uint64(format.BlockAlign())
	if dataLen > 0xFFFFFFFF-36 {
		dataLen = 0xFFFFFFFF - 36
	}
	result := Recording{Format: format, Bytes: uint32(dataLen), Tracks: rec.tracks}
	if err := codec.FinalizeHeader(seekWriterAt{w}, result.Bytes); err != nil {
		return result, err
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return result, fmt.Errorf("seek end: %w", err)
	}
	return result, streamErr
}

type recorder struct {
	w       io.Writer
	format  codec.Format
	tracks  int
	written uint64
	pending []byte
}

func (r *recorder) copy(body io.Reader) error {
	buf := make([]byte, recordChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if werr := r.feed(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return r.flush()
		}
		if err != nil {
			if ferr := r.flush(); ferr != nil {
				return ferr
			}
			return err
		}
	}
}

// feed writes PCM through, cutting out boundary headers. Bytes that could
// be the start of a header are held back until enough data arrives to tell.
func (r *recorder) feed(p []byte) error {
	data := append(r.pending, p...)
	r.pending = nil

	for {
		idx := bytes.Index(data, streamMagic)
		if idx < 0 {
			keep := partialMagic(data)
			if err := r.write(data[:len(data)-keep]); err != nil {
				return err
			}
			r.pending = append([]byte(nil), data[len(data)-keep:]...)
			return nil
		}
		if len(data)-idx < codec.HeaderSize {
			if err := r.write(data[:idx]); err != nil {
				return err
			}
			r.pending = append([]byte(nil), data[idx:]...)
			return nil
		}

		if err := r.write(data[:idx]); err != nil {
			return err
		}
		next, _, err := codec.ParseHeader(bytes.NewReader(data[idx : idx+codec.HeaderSize]))
		if err != nil {
			return fmt.Errorf("boundary header: %w", err)
		}
		if next != r.format {
			return fmt.Errorf("%w: %v -> %v", ErrFormatChanged, r.format, next)
		}
		r.tracks++
		data = data[idx+codec.HeaderSize:]
	}
}

// flush writes held-back bytes at end of stream unless they are a
// truncated header.
func (r *recorder) flush() error {
	pending := r.pending
	r.pending = nil
	if bytes.HasPrefix(pending, streamMagic) {
		return nil
	}
	return r.write(pending)
}

func (r *recorder) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := r.w.Write(p)
	r.written += uint64(n)
	if err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	return nil
}

// partialMagic is the length of the longest suffix of data that is a
// proper prefix of streamMagic.
func partialMagic(data []byte) int {
	limit := len(streamMagic) - 1
	if len(data) < limit {
		limit = len(data)
	}
	for n := limit; n > 0; n-- {
		if bytes.HasPrefix(streamMagic, data[len(data)-n:]) {
			return n
		}
	}
	return 0
}

// seekWriterAt adapts an io.WriteSeeker for header patching.
type seekWriterAt struct {
	ws io.WriteSeeker
}

func (s seekWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if _, err := s.ws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.ws.Write(p)
}
