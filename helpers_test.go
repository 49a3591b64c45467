package providers

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/MetaMask/providers-sub001/pkg/jsonrpc"
	"github.com/MetaMask/providers-sub001/pkg/log"
	"github.com/MetaMask/providers-sub001/pkg/mux"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func ptr[T any](v T) *T { return &v }

func testMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// recordedEvent is one observed event emission.
type recordedEvent struct {
	event   Event
	payload any
}

// eventRecorder captures emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) record(event Event) EventHandler {
	return func(payload any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, recordedEvent{event: event, payload: payload})
	}
}

func (r *eventRecorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count(event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.events {
		if rec.event == event {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(event Event) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i].payload, true
		}
	}
	return nil, false
}

func (r *eventRecorder) waitCount(t *testing.T, event Event, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.count(event) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events, have %d", want, event, r.count(event))
}

// logRecord collects warnings emitted through a captureLogger tree.
type logRecord struct {
	mu    sync.Mutex
	warns []string
}

func (r *logRecord) warnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warns)
}

// captureLogger is a Logger that records warning messages. Derived
// loggers share the same record.
type captureLogger struct {
	record *logRecord
	name   string
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{record: &logRecord{}}
}

func (l *captureLogger) Debug(msg string, keysAndValues ...any) {}
func (l *captureLogger) Info(msg string, keysAndValues ...any)  {}
func (l *captureLogger) Error(msg string, keysAndValues ...any) {}
func (l *captureLogger) Fatal(msg string, keysAndValues ...any) {}

func (l *captureLogger) Warn(msg string, keysAndValues ...any) {
	l.record.mu.Lock()
	defer l.record.mu.Unlock()
	l.record.warns = append(l.record.warns, msg)
}

func (l *captureLogger) WithKV(key string, value any) log.Logger { return l }

func (l *captureLogger) WithName(name string) log.Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &captureLogger{record: l.record, name: name}
}

func (l *captureLogger) Name() string { return l.name }

// walletEnd drives the far side of the pipe like the wallet process
// would: it reads framed requests off the RPC sub-channel and pushes
// framed responses, notifications and state snapshots back.
type walletEnd struct {
	t      *testing.T
	duplex *mux.PipeDuplex
}

func (w *walletEnd) send(channel string, payload any) {
	w.t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(w.t, err)
	frame, err := json.Marshal(struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}{Name: channel, Data: data})
	require.NoError(w.t, err)
	require.NoError(w.t, w.duplex.WriteMessage(frame))
}

func (w *walletEnd) readFrame() (string, json.RawMessage) {
	w.t.Helper()

	data, err := w.duplex.ReadMessage()
	require.NoError(w.t, err)

	var env struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(w.t, json.Unmarshal(data, &env))
	return env.Name, env.Data
}

// readRequest reads the next outbound RPC request.
func (w *walletEnd) readRequest() *jsonrpc.Request {
	w.t.Helper()

	name, data := w.readFrame()
	require.Equal(w.t, DefaultRPCChannel, name)

	var req jsonrpc.Request
	require.NoError(w.t, json.Unmarshal(data, &req))
	return &req
}

// readBatch reads the next outbound RPC batch payload.
func (w *walletEnd) readBatch() []*jsonrpc.Request {
	w.t.Helper()

	name, data := w.readFrame()
	require.Equal(w.t, DefaultRPCChannel, name)

	var reqs []*jsonrpc.Request
	require.NoError(w.t, json.Unmarshal(data, &reqs))
	return reqs
}

func (w *walletEnd) respond(id json.RawMessage, result any) {
	w.t.Helper()

	data, err := json.Marshal(result)
	require.NoError(w.t, err)
	w.send(DefaultRPCChannel, &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: data})
}

func (w *walletEnd) respondError(id json.RawMessage, rpcErr *jsonrpc.Error) {
	w.t.Helper()
	w.send(DefaultRPCChannel, &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Error: rpcErr})
}

func (w *walletEnd) notify(method string, params any) {
	w.t.Helper()

	data, err := json.Marshal(params)
	require.NoError(w.t, err)
	w.send(DefaultRPCChannel, &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: method, Params: data})
}

func (w *walletEnd) pushState(snapshot Snapshot) {
	w.t.Helper()
	w.send(DefaultStateChannel, snapshot)
}
