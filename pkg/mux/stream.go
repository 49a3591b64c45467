package mux

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Stream is a named logical partition of the physical channel. Messages
// on one stream never block or reorder messages on another: inbound
// traffic is parked in a per-stream unbounded queue and handed to the
// consumer by a dedicated delivery goroutine, so a slow consumer stalls
// only its own stream and never loses a message.
type Stream struct {
	name string
	mux  *Mux
	in   chan json.RawMessage

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []json.RawMessage
	closed bool
	cause  error
}

func newStream(name string, m *Mux, bufSize int) *Stream {
	s := &Stream{
		name: name,
		mux:  m,
		in:   make(chan json.RawMessage, bufSize),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.deliver()
	return s
}

// Name returns the sub-channel name.
func (s *Stream) Name() string {
	return s.name
}

// In returns the stream's inbound message channel. It preserves the
// order messages arrived on the physical channel. After the stream
// closes the channel keeps delivering whatever was already queued and
// is then closed; CloseReason reports why.
func (s *Stream) In() <-chan json.RawMessage {
	return s.in
}

// Send marshals v and writes it onto the stream.
func (s *Stream) Send(v any) error {
	s.mu.Lock()
	if s.closed {
		cause := s.cause
		s.mu.Unlock()
		if cause != nil {
			return fmt.Errorf("%w: %w", ErrStreamClosed, cause)
		}
		return ErrStreamClosed
	}
	s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling message: %w", err)
	}
	return s.mux.write(s.name, data)
}

// SendRaw writes pre-encoded JSON onto the stream.
func (s *Stream) SendRaw(data json.RawMessage) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}
	return s.mux.write(s.name, data)
}

// CloseReason returns the cause the stream was closed with: io.EOF when
// the remote peer ended the physical channel, the transport error for a
// local failure, or nil while the stream is still open or after a clean
// shutdown.
func (s *Stream) CloseReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// enqueue parks an inbound message for delivery. Messages arriving
// after closure are dropped.
func (s *Stream) enqueue(data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, data)
	s.cond.Signal()
}

// deliver drains the queue into the consumer channel. It closes the
// channel once the stream is closed and the queue is empty, so queued
// messages are never lost to a closure.
func (s *Stream) deliver() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.in)
			return
		}
		data := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.in <- data
	}
}

func (s *Stream) close(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cause = cause
	s.cond.Signal()
}
