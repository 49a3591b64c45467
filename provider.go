// Package providers implements the client half of a channel-multiplexed
// JSON-RPC session with a remote wallet process: a request pipeline with
// id remapping and error normalization, a push-driven mirror of the
// wallet's externally visible state, a connection lifecycle that runs
// Disconnected to Connected to Disconnected at most once each, and a
// legacy request surface kept for backward compatibility.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/MetaMask/providers-sub001/pkg/jsonrpc"
	"github.com/MetaMask/providers-sub001/pkg/log"
	"github.com/MetaMask/providers-sub001/pkg/mux"
)

var (
	ErrAlreadyStarted = errors.New("provider is already started")
)

// Provider mirrors a remote wallet over one multiplexed duplex channel.
// All exported methods are safe for concurrent use.
type Provider struct {
	config  Config
	logger  log.Logger
	metrics *Metrics

	mux    *mux.Mux
	rpc    *mux.Stream
	state  *mux.Stream
	events *emitter
	sync   *synchronizer
	engine *engine

	mu         sync.Mutex
	status     ConnectionStatus
	started    bool
	connected  bool // became connected at some point
	terminated bool // terminal disconnect happened

	legacyMu     sync.Mutex
	legacyWarned map[string]bool
}

// New creates a Provider over the given physical channel. The Provider
// takes exclusive ownership of the duplex; call Start to begin serving.
func New(duplex mux.Duplex, config Config) (*Provider, error) {
	if config.RPCChannel == "" {
		config.RPCChannel = DefaultRPCChannel
	}
	if config.StateChannel == "" {
		config.StateChannel = DefaultStateChannel
	}
	if config.Logger == nil {
		if config.Log == (log.Config{}) {
			config.Logger = log.NewNoopLogger()
		} else {
			config.Logger = log.NewZapLogger(config.Log)
		}
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics()
	}

	logger := config.Logger.WithName("provider")

	muxer, err := mux.New(mux.Config{
		Duplex:           duplex,
		Logger:           config.Logger,
		StreamBufferSize: config.StreamBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating multiplexer: %w", err)
	}
	for _, name := range config.ignoredChannelNames() {
		muxer.Ignore(name)
	}

	rpcStream, err := muxer.Open(config.RPCChannel)
	if err != nil {
		return nil, fmt.Errorf("error opening RPC sub-channel: %w", err)
	}
	stateStream, err := muxer.Open(config.StateChannel)
	if err != nil {
		return nil, fmt.Errorf("error opening state sub-channel: %w", err)
	}

	p := &Provider{
		config:  config,
		logger:  logger,
		metrics: config.Metrics,
		mux:     muxer,
		rpc:     rpcStream,
		state:   stateStream,
		events:  newEmitter(),
		status:  StatusDisconnected,
	}
	p.sync = newSynchronizer(config.Logger, config.Metrics, p.events)
	p.engine = newEngine(config.Logger, config.Metrics, rpcStream, config.CallTimeout, p.sync)
	p.engine.onNotification = p.handleNotification
	p.sync.refreshAccounts = p.refreshAccounts

	return p, nil
}

// Start begins serving the session. It returns immediately; the
// connected transition happens asynchronously once serving is under
// way. handleClosure is invoked exactly once when the session ends,
// after all pending requests have been failed and the disconnect events
// emitted: with nil for a context-driven shutdown, io.EOF when the
// remote peer ended the channel, and the transport error otherwise.
func (p *Provider) Start(ctx context.Context, handleClosure func(error)) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	if err := p.mux.Serve(ctx, func(err error) {
		p.handleMuxClosure(err)
		handleClosure(err)
	}); err != nil {
		return fmt.Errorf("error serving multiplexer: %w", err)
	}

	go p.readRPC()
	go p.readState()
	go p.markConnected()

	return nil
}

// Request marshals params, runs the method through the request pipeline
// and blocks until the response arrives or ctx ends. Failures carry a
// *jsonrpc.Error; an abandoned wait leaves the request in flight.
func (p *Provider) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, req)
}

// Call runs a prepared request through the pipeline and blocks until
// the response arrives or ctx ends.
func (p *Provider) Call(ctx context.Context, req *jsonrpc.Request) (json.RawMessage, error) {
	resCh := make(chan *jsonrpc.Response, 1)
	p.engine.Dispatch(req, func(res *jsonrpc.Response) {
		resCh <- res
	})

	select {
	case res := <-resCh:
		if res.Error != nil {
			return nil, res.Error
		}
		return res.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// On registers a handler for the given event and returns its
// unsubscribe function.
func (p *Provider) On(event Event, handler EventHandler) func() {
	return p.events.on(event, handler)
}

// Status returns the current connection status.
func (p *Provider) Status() ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// IsConnected reports whether the transport is currently usable.
func (p *Provider) IsConnected() bool {
	return p.Status() == StatusConnected
}

// ChainID returns the cached chain identifier, empty while unknown.
func (p *Provider) ChainID() string {
	return p.sync.chainIDValue()
}

// NetworkVersion returns the cached network identifier, empty while
// unknown.
func (p *Provider) NetworkVersion() string {
	return p.sync.networkVersionValue()
}

// Accounts returns a copy of the cached account list; ok is false while
// no account information has been received yet.
func (p *Provider) Accounts() (accounts []string, ok bool) {
	return p.sync.accountsValue()
}

// SelectedAddress returns the first cached account, or empty when the
// account list is empty or unknown.
func (p *Provider) SelectedAddress() string {
	return p.sync.selectedAddress()
}

// IsUnlocked returns the cached lock status; ok is false while no
// snapshot has reported it yet.
func (p *Provider) IsUnlocked() (unlocked, ok bool) {
	return p.sync.isUnlocked()
}

// readRPC feeds inbound RPC sub-channel messages into the pipeline.
func (p *Provider) readRPC() {
	for raw := range p.rpc.In() {
		p.engine.handleInbound(raw)
	}
}

// readState feeds pushed state snapshots into the synchronizer.
func (p *Provider) readState() {
	for raw := range p.state.In() {
		var snapshot Snapshot
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			p.logger.Warn("malformed state snapshot, dropping", "error", err)
			continue
		}
		p.sync.applySnapshot(snapshot)
	}
}

// markConnected performs the one-time Disconnected to Connected
// transition and emits EventConnect.
func (p *Provider) markConnected() {
	p.mu.Lock()
	if p.connected || p.terminated {
		p.mu.Unlock()
		return
	}
	p.connected = true
	p.status = StatusConnected
	p.mu.Unlock()

	p.metrics.Connected.Set(1)
	p.logger.Info("connected")
	p.events.emit(EventConnect, ConnectInfo{ChainID: p.sync.chainIDValue()})
}

// handleMuxClosure performs the one-time terminal disconnect: it
// classifies the cause, fails every pending request, and emits the
// disconnect events.
func (p *Provider) handleMuxClosure(err error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.status = StatusDisconnected
	p.mu.Unlock()

	reason := DisconnectReason{}
	if errors.Is(err, io.EOF) {
		reason.Remote = true
	} else {
		reason.Err = err
	}

	origin := "local"
	if reason.Remote {
		origin = "remote"
	}
	p.metrics.Connected.Set(0)
	p.metrics.DisconnectsTotal.WithLabelValues(origin).Inc()
	p.logger.Info("disconnected", "reason", reason.String())

	p.engine.failAllPending(jsonrpc.DisconnectedError())

	p.events.emit(EventDisconnect, reason)
	p.events.emit(EventClose, reason)
}

// handleNotification re-emits a server push to subscribers. The
// subscription payload also feeds the legacy notification event.
func (p *Provider) handleNotification(method string, params json.RawMessage) {
	p.events.emit(EventMessage, ProviderMessage{Type: method, Data: params})
	if method == notificationSubscription {
		p.events.emit(EventNotification, params)
	}
}

// refreshAccounts dispatches a fire-and-forget account list request,
// used after an unlock transition to pick up the now-readable list.
func (p *Provider) refreshAccounts() {
	req, err := jsonrpc.NewRequest(methodEthAccounts, nil)
	if err != nil {
		p.sync.cancelInternalRefresh()
		return
	}
	p.engine.Dispatch(req, func(res *jsonrpc.Response) {
		if res.Error != nil {
			p.sync.cancelInternalRefresh()
			p.logger.Warn("account refresh after unlock failed", "error", res.Error)
		}
	})
}
