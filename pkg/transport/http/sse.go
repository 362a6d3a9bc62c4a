package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/transport"
)

var errStreamClosed = errors.New("chat stream already ended")

// sseWriter streams chat events as server-sent events:
//
//	event: chain.invoking
//	data: {"type":"chain.invoking","sequence_number":3,...}
//
// Events are numbered in write order. A terminal event is followed by
// "data: [DONE]" and ends the stream. Once the stream is open, a
// ": keepalive" comment goes out whenever no event was written for a
// heartbeat interval, so proxies keep long background steps connected.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu       sync.Mutex
	open     bool
	ended    bool
	seq      int
	lastSend time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ transport.EventWriter = (*sseWriter)(nil)

// newSSEWriter returns a writer for w. A heartbeat of zero disables
// keepalives. Callers must call close before the handler returns.
func newSSEWriter(w http.ResponseWriter, heartbeat time.Duration) *sseWriter {
	s := &sseWriter{w: w, rc: http.NewResponseController(w), stop: make(chan struct{})}
	if heartbeat > 0 {
		s.wg.Add(1)
		go s.keepalive(heartbeat)
	}
	return s
}

func (s *sseWriter) WriteEvent(_ context.Context, ev api.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return errStreamClosed
	}
	if !s.open {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.open = true
	}

	ev.SequenceNumber = s.seq
	s.seq++
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}

	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)
	if ev.Type.Terminal() {
		frame += "data: [DONE]\n\n"
		s.ended = true
	}
	return s.send(frame)
}

// send writes and flushes one frame. s.mu must be held.
func (s *sseWriter) send(frame string) error {
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("writing event stream: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing event stream: %w", err)
	}
	s.lastSend = time.Now()
	return nil
}

func (s *sseWriter) keepalive(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.open && !s.ended && time.Since(s.lastSend) >= interval {
				s.send(": keepalive\n\n")
			}
			s.mu.Unlock()
		}
	}
}

func (s *sseWriter) Flush() error {
	return s.rc.Flush()
}

// close stops the heartbeat and waits for it to exit.
func (s *sseWriter) close() {
	close(s.stop)
	s.wg.Wait()
}

func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *sseWriter) completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
