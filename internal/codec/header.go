/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the length of a canonical RIFF/WAVE header.
const HeaderSize = 44

// streamLength marks RIFF and data sizes as unknown on a live stream.
const streamLength = 0xFFFFFFFF

const (
	formatPCM = 1
	fmtSize   = 16
)

// Header builds a canonical header for dataLen bytes of PCM.
func Header(f Format, dataLen uint32) []byte {
	riffLen := uint32(streamLength)
	if dataLen != streamLength {
		riffLen = 36 + dataLen
	}
	return header(f, riffLen, dataLen)
}

// StreamHeader builds the header sent ahead of each track on the live
// stream. Both lengths are 0xFFFFFFFF so players treat the body as
// open-ended.
func StreamHeader(f Format) []byte {
	return header(f, streamLength, streamLength)
}

func header(f Format, riffLen, dataLen uint32) []byte {
	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], riffLen)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], fmtSize)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], f.SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], f.ByteRate())
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

// ParseHeader reads a canonical 44-byte header and returns the format and
// the declared data length (0xFFFFFFFF on a live stream).
func ParseHeader(r io.Reader) (Format, uint32, error) {
	h := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, h); err != nil {
		return Format{}, 0, fmt.Errorf("read header: %w", err)
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		return Format{}, 0, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedFormat)
	}
	if string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		return Format{}, 0, fmt.Errorf("%w: non-canonical header", ErrUnsupportedFormat)
	}
	if binary.LittleEndian.Uint16(h[20:22]) != formatPCM {
		return Format{}, 0, fmt.Errorf("%w: not PCM", ErrUnsupportedFormat)
	}

	f := Format{
		Channels:      uint32(binary.LittleEndian.Uint16(h[22:24])),
		SampleRate:    binary.LittleEndian.Uint32(h[24:28]),
		BitsPerSample: uint32(binary.LittleEndian.Uint16(h[34:36])),
	}
	if err := f.Validate(); err != nil {
		return Format{}, 0, err
	}
	return f, binary.LittleEndian.Uint32(h[40:44]), nil
}

// FinalizeHeader rewrites the length fields of a recorded stream once the
// true data length is known.
func FinalizeHeader(w io.WriterAt, dataLen uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], 36+dataLen)
	if _, err := w.WriteAt(b[:], 4); err != nil {
		return fmt.Errorf("write riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(b[:], dataLen)
	if _, err := w.WriteAt(b[:], 40); err != nil {
		return fmt.Errorf("write data size: %w", err)
	}
	return nil
}
