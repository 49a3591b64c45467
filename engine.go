package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MetaMask/providers-sub001/pkg/jsonrpc"
	"github.com/MetaMask/providers-sub001/pkg/log"
	"github.com/MetaMask/providers-sub001/pkg/mux"
)

// RPC methods with special handling in the pipeline.
const (
	methodEthAccounts     = "eth_accounts"
	methodRequestAccounts = "eth_requestAccounts"
	methodEthCoinbase     = "eth_coinbase"
	methodUninstallFilter = "eth_uninstallFilter"
	methodNetVersion      = "net_version"

	// notificationSubscription carries subscription push events, which
	// are re-emitted to subscribers verbatim.
	notificationSubscription = "eth_subscription"
	// notificationAccountsChanged carries a pushed account list, routed
	// to the state synchronizer instead of being re-emitted.
	notificationAccountsChanged = "metamask_accountsChanged"
)

// ResponseCallback receives the single response a dispatch resolves
// with. It is invoked exactly once per dispatched request.
type ResponseCallback func(*jsonrpc.Response)

// pendingRequest tracks one in-flight request: the caller-supplied
// opaque id, the resolution callback, and for batch elements the slot
// the response belongs to.
type pendingRequest struct {
	localID json.RawMessage
	method  string
	cb      ResponseCallback
	timer   *time.Timer
	batch   *batchState
	index   int
}

// batchState collects the element responses of one batch dispatch and
// resolves the batch callback when the last element lands.
type batchState struct {
	mu        sync.Mutex
	responses []*jsonrpc.Response
	remaining int
	cb        func([]*jsonrpc.Response)
}

func (b *batchState) deliver(index int, res *jsonrpc.Response) {
	b.mu.Lock()
	b.responses[index] = res
	b.remaining--
	done := b.remaining == 0
	b.mu.Unlock()

	if done {
		b.cb(b.responses)
	}
}

// engine is the request pipeline. It validates payloads, remaps caller
// ids onto sequence-assigned wire ids, writes normalized payloads onto
// the RPC sub-channel and matches tagged responses back to waiting
// callers. The engine exclusively owns the correlation table; no other
// component touches wire ids.
type engine struct {
	logger  log.Logger
	metrics *Metrics
	stream  *mux.Stream
	timeout time.Duration
	sync    *synchronizer

	// onNotification re-emits subscription push events to subscribers.
	onNotification func(method string, params json.RawMessage)

	mu       sync.Mutex
	nextWire uint64
	pending  map[uint64]*pendingRequest
	closed   bool
	closeErr *jsonrpc.Error
}

func newEngine(logger log.Logger, metrics *Metrics, stream *mux.Stream, timeout time.Duration, sync *synchronizer) *engine {
	return &engine{
		logger:  logger.WithName("engine"),
		metrics: metrics,
		stream:  stream,
		timeout: timeout,
		sync:    sync,
		pending: make(map[uint64]*pendingRequest),
	}
}

// Dispatch runs a request through the pipeline. The callback is invoked
// exactly once: with the peer's response, with a locally-rejected
// invalid request error, or with a connection error. Malformed requests
// never reach the transport.
func (e *engine) Dispatch(req *jsonrpc.Request, cb ResponseCallback) {
	if verr := req.Validate(); verr != nil {
		e.metrics.RequestsRejected.Inc()
		cb(errorResponse(localID(req), verr))
		return
	}

	e.mu.Lock()
	if e.closed {
		closeErr := e.closeErr
		e.mu.Unlock()
		cb(errorResponse(req.ID, closeErr))
		return
	}
	out, wireID := e.registerLocked(req, cb, nil, 0)
	e.mu.Unlock()

	e.metrics.RequestsTotal.WithLabelValues(req.Method).Inc()
	if err := e.stream.Send(out); err != nil {
		e.resolveLocal(wireID, transportError(err))
	}
}

// DispatchBatch remaps an array payload element-wise, forwards it as a
// single message and resolves the callback with the ordered array
// response. A validation failure in any element rejects the whole batch
// synchronously, before any wire traffic.
func (e *engine) DispatchBatch(reqs []*jsonrpc.Request, cb func([]*jsonrpc.Response)) *jsonrpc.Error {
	if len(reqs) == 0 {
		return jsonrpc.InvalidRequestError("batch must not be empty")
	}
	for _, req := range reqs {
		if verr := req.Validate(); verr != nil {
			e.metrics.RequestsRejected.Inc()
			return verr
		}
	}

	batch := &batchState{
		responses: make([]*jsonrpc.Response, len(reqs)),
		remaining: len(reqs),
		cb:        cb,
	}

	e.mu.Lock()
	if e.closed {
		closeErr := e.closeErr
		e.mu.Unlock()
		return closeErr
	}
	outs := make([]*jsonrpc.Request, len(reqs))
	wireIDs := make([]uint64, len(reqs))
	for i, req := range reqs {
		outs[i], wireIDs[i] = e.registerLocked(req, nil, batch, i)
	}
	e.mu.Unlock()

	for _, req := range reqs {
		e.metrics.RequestsTotal.WithLabelValues(req.Method).Inc()
	}
	if err := e.stream.Send(outs); err != nil {
		rpcErr := transportError(err)
		for _, wireID := range wireIDs {
			e.resolveLocal(wireID, rpcErr)
		}
	}
	return nil
}

// registerLocked assigns a fresh wire id, stores the local-id mapping
// and returns the rewritten outbound request. Collisions are impossible
// because wire ids are sequence-assigned, never caller-controlled.
func (e *engine) registerLocked(req *jsonrpc.Request, cb ResponseCallback, batch *batchState, index int) (*jsonrpc.Request, uint64) {
	e.nextWire++
	wireID := e.nextWire

	out := &jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      jsonrpc.NumberID(wireID),
		Method:  req.Method,
		Params:  req.Params,
	}
	pend := &pendingRequest{
		localID: req.ID,
		method:  req.Method,
		cb:      cb,
		batch:   batch,
		index:   index,
	}
	if e.timeout > 0 {
		pend.timer = time.AfterFunc(e.timeout, func() { e.expire(wireID) })
	}
	e.pending[wireID] = pend
	e.metrics.PendingRequests.Inc()

	return out, wireID
}

// handleInbound processes one raw message arriving on the RPC
// sub-channel: a response, a notification, or an array of either.
func (e *engine) handleInbound(raw json.RawMessage) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []jsonrpc.Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			e.logger.Warn("malformed batch message, dropping", "error", err)
			return
		}
		for i := range msgs {
			e.handleMessage(&msgs[i])
		}
		return
	}

	var msg jsonrpc.Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		e.logger.Warn("malformed message, dropping", "error", err)
		return
	}
	e.handleMessage(&msg)
}

func (e *engine) handleMessage(msg *jsonrpc.Message) {
	switch {
	case msg.IsNotification():
		e.handleNotification(msg)
	case msg.IsResponse():
		e.handleResponse(msg)
	default:
		e.logger.Debug("unclassifiable message, dropping", "method", msg.Method)
	}
}

func (e *engine) handleNotification(msg *jsonrpc.Message) {
	e.metrics.NotificationsTotal.Inc()

	if msg.Method == notificationAccountsChanged {
		var accounts []string
		if err := json.Unmarshal(msg.Params, &accounts); err != nil {
			e.logger.Warn("malformed accounts notification, dropping", "error", err)
			return
		}
		e.sync.handleNotifiedAccounts(accounts)
		return
	}

	if e.onNotification != nil {
		e.onNotification(msg.Method, msg.Params)
	}
}

func (e *engine) handleResponse(msg *jsonrpc.Message) {
	wireID, ok := jsonrpc.ParseNumberID(msg.ID)
	if !ok {
		e.logger.Debug("response with non-wire id, dropping", "id", string(msg.ID))
		e.metrics.DroppedResponses.Inc()
		return
	}

	pend := e.take(wireID)
	if pend == nil {
		e.logger.Debug("response for unknown request id, dropping", "wireID", wireID)
		e.metrics.DroppedResponses.Inc()
		return
	}

	res := msg.Response()
	res.ID = pend.localID
	if res.Error != nil {
		res.Error = jsonrpc.Normalize(res.Error)
		e.metrics.RequestsFailed.WithLabelValues(pend.method).Inc()
	}

	// Account-list results update the synchronizer before the caller is
	// notified, keeping caller-visible state consistent with the result.
	if res.Error == nil && (pend.method == methodEthAccounts || pend.method == methodRequestAccounts) {
		var accounts []string
		if err := json.Unmarshal(res.Result, &accounts); err != nil {
			e.logger.Warn("account-list result is not a string array", "method", pend.method, "error", err)
		} else {
			e.sync.handleRPCAccounts(accounts)
		}
	}

	e.deliver(pend, res)
}

// failAllPending rejects every outstanding request with the given
// connection error, clears the correlation table and fails all future
// dispatches immediately. Requests are rejected in wire id order.
func (e *engine) failAllPending(reason *jsonrpc.Error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.closeErr = reason
	pending := e.pending
	e.pending = make(map[uint64]*pendingRequest)
	e.mu.Unlock()

	wireIDs := make([]uint64, 0, len(pending))
	for wireID := range pending {
		wireIDs = append(wireIDs, wireID)
	}
	sort.Slice(wireIDs, func(i, j int) bool { return wireIDs[i] < wireIDs[j] })

	for _, wireID := range wireIDs {
		pend := pending[wireID]
		if pend.timer != nil {
			pend.timer.Stop()
		}
		e.metrics.PendingRequests.Dec()
		e.metrics.RequestsFailed.WithLabelValues(pend.method).Inc()
		e.deliver(pend, errorResponse(pend.localID, reason))
	}
}

// pendingCount reports the size of the correlation table.
func (e *engine) pendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// take removes and returns the pending entry for a wire id, or nil.
func (e *engine) take(wireID uint64) *pendingRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	pend, ok := e.pending[wireID]
	if !ok {
		return nil
	}
	delete(e.pending, wireID)
	if pend.timer != nil {
		pend.timer.Stop()
	}
	e.metrics.PendingRequests.Dec()
	return pend
}

// resolveLocal fails one in-flight request with a locally-generated
// error.
func (e *engine) resolveLocal(wireID uint64, rpcErr *jsonrpc.Error) {
	pend := e.take(wireID)
	if pend == nil {
		return
	}
	e.metrics.RequestsFailed.WithLabelValues(pend.method).Inc()
	e.deliver(pend, errorResponse(pend.localID, rpcErr))
}

// expire fails a request whose configured wait time elapsed without a
// response.
func (e *engine) expire(wireID uint64) {
	pend := e.take(wireID)
	if pend == nil {
		return
	}
	e.logger.Warn("request timed out awaiting response", "method", pend.method)
	e.metrics.RequestsFailed.WithLabelValues(pend.method).Inc()
	e.deliver(pend, errorResponse(pend.localID, jsonrpc.NewError(jsonrpc.CodeInternal, "request timed out awaiting response")))
}

func (e *engine) deliver(pend *pendingRequest, res *jsonrpc.Response) {
	if pend.batch != nil {
		pend.batch.deliver(pend.index, res)
		return
	}
	pend.cb(res)
}

func errorResponse(id json.RawMessage, rpcErr *jsonrpc.Error) *jsonrpc.Response {
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Error: rpcErr}
}

func localID(req *jsonrpc.Request) json.RawMessage {
	if req == nil {
		return nil
	}
	return req.ID
}

// transportError classifies a sub-channel write failure: a closed
// channel surfaces as the connection-unavailable error, anything else
// as an internal error.
func transportError(err error) *jsonrpc.Error {
	if errors.Is(err, mux.ErrStreamClosed) || errors.Is(err, mux.ErrMuxClosed) {
		return jsonrpc.DisconnectedError()
	}
	return jsonrpc.Normalize(err)
}
