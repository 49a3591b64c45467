package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/MetaMask/providers-sub001/pkg/log"
)

// defaultStreamBufferSize is the default capacity of each stream's
// delivery channel.
const defaultStreamBufferSize = 64

var (
	ErrNilDuplex       = fmt.Errorf("duplex channel cannot be nil")
	ErrMuxClosed       = fmt.Errorf("multiplexer is closed")
	ErrStreamClosed    = fmt.Errorf("stream is closed")
	ErrDuplicateStream = fmt.Errorf("stream already open")
	ErrStreamIgnored   = fmt.Errorf("stream name is marked ignored")
	ErrAlreadyServing  = fmt.Errorf("multiplexer is already serving")
)

// Duplex abstracts the single physical bidirectional message channel
// the multiplexer owns. The websocket implementation lives in this
// package; tests use the in-memory Pipe.
type Duplex interface {
	// ReadMessage reads the next message from the channel. It returns
	// io.EOF when the remote peer ends the channel cleanly.
	ReadMessage() ([]byte, error)
	// WriteMessage writes a message to the channel.
	WriteMessage(data []byte) error
	// Close closes the channel.
	Close() error
}

// envelope is the wire frame carrying one sub-channel message.
type envelope struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Config contains configuration options for creating a Mux.
type Config struct {
	// Duplex is the physical channel to multiplex (required). The Mux
	// takes exclusive ownership: no other component may write to it.
	Duplex Duplex
	// Logger for multiplexer events (default: no-op logger).
	Logger log.Logger
	// StreamBufferSize is the capacity of each stream's delivery
	// channel (default: 64). Inbound traffic beyond it queues without
	// bound, so a slow consumer delays its own stream but never loses
	// messages.
	StreamBufferSize int
}

// Mux multiplexes named logical streams over one physical duplex
// channel.
type Mux struct {
	duplex  Duplex
	logger  log.Logger
	bufSize int

	mu      sync.Mutex
	streams map[string]*Stream
	order   []string // stream registration order, for deterministic closure
	ignored map[string]struct{}
	serving bool
	closed  bool
	cause   error

	writeMu sync.Mutex // serializes writes to the duplex
}

// New creates a Mux over the given physical channel.
func New(config Config) (*Mux, error) {
	if config.Duplex == nil {
		return nil, ErrNilDuplex
	}
	if config.Logger == nil {
		config.Logger = log.NewNoopLogger()
	}
	if config.StreamBufferSize <= 0 {
		config.StreamBufferSize = defaultStreamBufferSize
	}

	return &Mux{
		duplex:  config.Duplex,
		logger:  config.Logger.WithName("mux"),
		bufSize: config.StreamBufferSize,
		streams: make(map[string]*Stream),
		ignored: make(map[string]struct{}),
	}, nil
}

// Open creates the named sub-channel. Opening the same name twice, or
// a name previously marked ignored, is an error.
func (m *Mux) Open(name string) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if m.cause != nil {
			return nil, fmt.Errorf("%w: %w", ErrMuxClosed, m.cause)
		}
		return nil, ErrMuxClosed
	}
	if _, ok := m.streams[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateStream, name)
	}
	if _, ok := m.ignored[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamIgnored, name)
	}

	stream := newStream(name, m, m.bufSize)
	m.streams[name] = stream
	m.order = append(m.order, name)
	return stream, nil
}

// Ignore marks a sub-channel name whose traffic is silently dropped,
// never buffered. Used for channels reserved for unrelated traffic.
func (m *Mux) Ignore(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[name] = struct{}{}
}

// Serve starts the multiplexer's read loop. It returns immediately;
// handleClosure is invoked exactly once when the physical channel ends,
// with nil for a context-driven shutdown, io.EOF when the remote peer
// ended the channel, and the transport error otherwise. By the time
// handleClosure runs every open stream has been closed with that cause.
func (m *Mux) Serve(parentCtx context.Context, handleClosure func(error)) error {
	m.mu.Lock()
	if m.serving {
		m.mu.Unlock()
		return ErrAlreadyServing
	}
	m.serving = true
	m.mu.Unlock()

	childCtx, cancel := context.WithCancel(parentCtx)
	wg := &sync.WaitGroup{}
	wg.Add(2)

	var closureErr error
	var closureErrMu sync.Mutex
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		defer closureErrMu.Unlock()

		if err != nil && closureErr == nil {
			closureErr = err
		}

		cancel()
		wg.Done()
	}

	go m.readMessages(childCtx, childHandleClosure)
	go m.closeOnContextDone(childCtx, childHandleClosure)

	go func() {
		wg.Wait()

		closureErrMu.Lock()
		err := closureErr
		closureErrMu.Unlock()

		m.closeAll(err)
		handleClosure(err)
	}()

	return nil
}

// readMessages reads envelopes off the physical channel and routes them
// to the matching stream.
func (m *Mux) readMessages(ctx context.Context, handleClosure func(error)) {
	for {
		data, err := m.duplex.ReadMessage()
		if ctx.Err() != nil {
			handleClosure(nil)
			return
		} else if err == io.EOF {
			m.logger.Info("remote peer ended the channel")
			handleClosure(io.EOF)
			return
		} else if err != nil {
			m.logger.Error("error reading from channel", "error", err)
			handleClosure(err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.logger.Warn("malformed envelope, dropping", "error", err)
			continue
		}

		m.route(env)
	}
}

func (m *Mux) route(env envelope) {
	m.mu.Lock()
	stream, open := m.streams[env.Name]
	_, ignored := m.ignored[env.Name]
	m.mu.Unlock()

	if ignored {
		return // dropped silently, never buffered
	}
	if !open {
		m.logger.Debug("message for unknown sub-channel, dropping", "name", env.Name)
		return
	}

	stream.enqueue(env.Data)
}

// closeOnContextDone closes the physical channel when the context ends.
func (m *Mux) closeOnContextDone(ctx context.Context, handleClosure func(error)) {
	<-ctx.Done()

	if err := m.duplex.Close(); err != nil {
		m.logger.Debug("error closing duplex channel", "error", err)
	}
	handleClosure(nil)
}

// closeAll closes every open stream with the same cause, in the order
// the streams were registered.
func (m *Mux) closeAll(cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cause = cause
	order := m.order
	streams := m.streams
	m.mu.Unlock()

	for _, name := range order {
		streams[name].close(cause)
	}
}

// write frames data for the named sub-channel and writes it to the
// physical channel. Writes are serialized.
func (m *Mux) write(name string, data json.RawMessage) error {
	m.mu.Lock()
	if m.closed {
		cause := m.cause
		m.mu.Unlock()
		if cause != nil {
			return fmt.Errorf("%w: %w", ErrMuxClosed, cause)
		}
		return ErrMuxClosed
	}
	m.mu.Unlock()

	frame, err := json.Marshal(envelope{Name: name, Data: data})
	if err != nil {
		return fmt.Errorf("error marshaling envelope: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.duplex.WriteMessage(frame)
}
