// Package stream turns a channel of canonical provider.StreamResults into
// Server-Sent Events on the wire, in whichever dialect the client asked
// for. The provider adapters all speak the same canonical event stream
// (internal/types.StreamEvent); this package is where that single stream
// fans out into OpenAI-shaped or Anthropic-shaped SSE bytes.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/types"
	wireAnthropic "github.com/omnidotdev/synapse/internal/wire/anthropic"
	wireOpenAI "github.com/omnidotdev/synapse/internal/wire/openai"
)

// setSSEHeaders marks the response as an SSE stream. Must run before the
// first Write/Flush call — once bytes go out, headers are locked in.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// flusherOrErr asserts that w supports http.Flusher — true for Go's
// standard HTTP server, but a caller-supplied test ResponseRecorder
// needs an explicit check rather than a panicking type assertion.
func flusherOrErr(w http.ResponseWriter) (http.Flusher, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}
	return f, nil
}

// WriteOpenAI reads canonical stream results and writes them to w as
// OpenAI-compatible SSE: one "data: {json}\n\n" line per chunk, ending
// with the literal "data: [DONE]\n\n" sentinel.
func WriteOpenAI(w http.ResponseWriter, id, model string, created int64, results <-chan provider.StreamResult) error {
	flusher, err := flusherOrErr(w)
	if err != nil {
		return err
	}
	setSSEHeaders(w)

	for r := range results {
		if r.Err != nil {
			slog.Error("openai stream error", "err", r.Err)
			return r.Err
		}

		if r.Event.Kind == types.StreamKindDone {
			if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
				return fmt.Errorf("stream: writing done sentinel: %w", err)
			}
			flusher.Flush()
			return nil
		}

		chunk, ok := wireOpenAI.EventToChunk(id, model, created, r.Event)
		if !ok {
			continue
		}
		if err := writeJSONLine(w, chunk); err != nil {
			return err
		}
		flusher.Flush()
	}

	// Provider channels close without a trailing Done on mid-stream
	// disconnects; still emit [DONE] so well-behaved clients don't hang.
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("stream: writing done sentinel: %w", err)
	}
	flusher.Flush()
	return nil
}

// WriteAnthropic reads canonical stream results and writes them to w as
// Anthropic's named-event SSE stream using wire/anthropic's Encoder,
// which owns the content-block bookkeeping (exactly one open block at a
// time, tool-call blocks numbered after any open text block closes).
func WriteAnthropic(w http.ResponseWriter, id, model string, results <-chan provider.StreamResult) error {
	flusher, err := flusherOrErr(w)
	if err != nil {
		return err
	}
	setSSEHeaders(w)

	enc := wireAnthropic.NewEncoder(id, model)

	for r := range results {
		if r.Err != nil {
			slog.Error("anthropic stream error", "err", r.Err)
			return r.Err
		}

		for _, named := range enc.Encode(r.Event) {
			line, err := wireAnthropic.MarshalNamed(named)
			if err != nil {
				return fmt.Errorf("stream: marshaling anthropic event: %w", err)
			}
			if _, err := fmt.Fprint(w, line); err != nil {
				return fmt.Errorf("stream: writing anthropic event: %w", err)
			}
			flusher.Flush()
		}

		if r.Event.Kind == types.StreamKindDone {
			return nil
		}
	}

	for _, named := range enc.Encode(types.DoneEvent) {
		line, _ := wireAnthropic.MarshalNamed(named)
		fmt.Fprint(w, line)
	}
	flusher.Flush()
	return nil
}

func writeJSONLine(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshaling SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("stream: writing SSE event: %w", err)
	}
	return nil
}

// NowUnix is a small seam so handlers can stamp "created" on a response
// without every call site importing "time" directly.
func NowUnix() int64 { return time.Now().Unix() }
