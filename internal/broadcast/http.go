/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/wavecast/internal/version"
)

// StreamName is sent as icy-name.
const StreamName = "wavecast"

// ServeHTTP streams the live WAV feed. The response never ends on its own:
// each track is preceded by a header with open-ended lengths.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sink, ok := b.Register(ListenerInfo{
		Transport:  "http",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if !ok {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer b.Deregister(sink.ID())

	h := w.Header()
	h.Set("Content-Type", "audio/wav")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Accel-Buffering", "no")
	h.Set("icy-name", StreamName)
	h.Set("icy-description", "live WAV broadcast")
	h.Set("Server", version.UserAgent())
	if track, _ := b.state.Current(); track != nil {
		h.Set("icy-br", itoa(uint64(track.Format.ByteRate())*8/1000))
	}
	h.Del("Content-Length")
	w.WriteHeader(http.StatusOK)

	flusher := &rcFlusher{rc: http.NewResponseController(w), logger: b.logger}
	flusher.Flush()

	err := sink.Pump(r.Context(), func(p []byte) error {
		if _, err := w.Write(p); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, ErrSinkClosed) {
		b.logger.Debug().Err(err).Str("sink_id", sink.ID()).Msg("http listener stream ended")
	}
}

// ServeWS streams the same feed as binary websocket messages, one block per
// message.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		b.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	sink, ok := b.Register(ListenerInfo{
		Transport:  "websocket",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer b.Deregister(sink.ID())

	// Listeners never send; CloseRead reacts to their close frame.
	ctx := conn.CloseRead(r.Context())

	err = sink.Pump(ctx, func(p []byte) error {
		return conn.Write(ctx, websocket.MessageBinary, p)
	})
	switch {
	case errors.Is(err, ErrSinkClosed):
		conn.Close(websocket.StatusGoingAway, "dropped")
	case err != nil:
		b.logger.Debug().Err(err).Str("sink_id", sink.ID()).Msg("websocket listener stream ended")
	}
}

// rcFlusher flushes through http.ResponseController so wrapped writers work.
type rcFlusher struct {
	rc        *http.ResponseController
	logger    zerolog.Logger
	errLogged bool
}

func (f *rcFlusher) Flush() {
	if err := f.rc.Flush(); err != nil && !f.errLogged {
		f.logger.Debug().Err(err).Msg("ResponseController flush failed")
		f.errLogged = true
	}
}

// Stats is the /listeners payload.
type Stats struct {
	Listeners int            `json:"listeners"`
	Sinks     []ListenerInfo `json:"sinks"`
}

// Stats returns the current listener table.
func (b *Broadcaster) Stats() Stats {
	sinks := b.Listeners()
	return Stats{Listeners: len(sinks), Sinks: sinks}
}

func itoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
