package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/af-corp/chat-gateway/internal/types"
)

// sseWriter frames stream events as server-sent events. Nothing is written
// to the client until the first event that carries model output, so a
// provider that fails before producing anything can still be reported as
// a plain JSON error.
type sseWriter struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	pending   []types.StreamEvent
	committed bool
	onCommit  func()
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

func (s *sseWriter) Committed() bool { return s.committed }

// Queue holds an envelope event (start, start-step) until the next Send.
func (s *sseWriter) Queue(ev types.StreamEvent) {
	if s.committed {
		s.write(ev)
		s.flush()
		return
	}
	s.pending = append(s.pending, ev)
}

// Send commits the stream if needed and writes ev.
func (s *sseWriter) Send(ev types.StreamEvent) error {
	if !s.committed {
		s.commit()
	}
	if err := s.write(ev); err != nil {
		return err
	}
	s.flush()
	return nil
}

// Done writes the terminator. Streams that ended in an error event are
// closed without it.
func (s *sseWriter) Done() {
	if !s.committed {
		s.commit()
	}
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
}

func (s *sseWriter) commit() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.committed = true
	if s.onCommit != nil {
		s.onCommit()
	}
	for _, ev := range s.pending {
		s.write(ev)
	}
	s.pending = nil
}

func (s *sseWriter) write(ev types.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	return err
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
