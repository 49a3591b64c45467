package providers

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetaMask/providers-sub001/pkg/jsonrpc"
	"github.com/MetaMask/providers-sub001/pkg/log"
	"github.com/MetaMask/providers-sub001/pkg/mux"
)

// newTestProvider builds an unstarted provider over an in-memory pipe.
func newTestProvider(t *testing.T, config Config) (*Provider, *walletEnd) {
	t.Helper()

	local, remote := mux.Pipe()
	if config.Metrics == nil {
		config.Metrics = testMetrics()
	}
	p, err := New(local, config)
	require.NoError(t, err)
	return p, &walletEnd{t: t, duplex: remote}
}

// startProvider starts the provider and returns the closure channel and
// a cancel func for local shutdown.
func startProvider(t *testing.T, p *Provider) (<-chan error, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	closed := make(chan error, 1)
	require.NoError(t, p.Start(ctx, func(err error) { closed <- err }))
	return closed, cancel
}

func waitClosed(t *testing.T, closed <-chan error) error {
	t.Helper()

	select {
	case err := <-closed:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session closure")
		return nil
	}
}

func TestProviderConnectTransition(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventConnect, rec.record(EventConnect))

	assert.Equal(t, StatusDisconnected, p.Status())
	startProvider(t, p)

	rec.waitCount(t, EventConnect, 1)
	assert.True(t, p.IsConnected())

	payload, ok := rec.last(EventConnect)
	require.True(t, ok)
	assert.Equal(t, ConnectInfo{}, payload)
}

func TestNewBuildsLoggerFromLogConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "provider.log")
	local, _ := mux.Pipe()
	p, err := New(local, Config{
		Metrics: testMetrics(),
		Log:     log.Config{Format: "logfmt", Level: log.LevelDebug, Output: path},
	})
	require.NoError(t, err)

	// The deprecation warning travels through the configured logger.
	_, err = p.Send(context.Background(), methodEthAccounts)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deprecated")
}

func TestProviderStartTwice(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, Config{})
	startProvider(t, p)
	assert.ErrorIs(t, p.Start(context.Background(), func(error) {}), ErrAlreadyStarted)
}

func TestProviderRequestRoundTrip(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	startProvider(t, p)

	go func() {
		req := wallet.readRequest()
		// Outbound ids are sequence-assigned numbers regardless of what
		// the caller supplied.
		if _, ok := jsonrpc.ParseNumberID(req.ID); !ok {
			panic("wire id is not a number")
		}
		wallet.respond(req.ID, "0x1")
	}()

	result, err := p.Request(context.Background(), "eth_chainId", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x1"`, string(result))
}

func TestProviderResponsesCorrelatedOutOfOrder(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	startProvider(t, p)

	type outcome struct {
		id     json.RawMessage
		result json.RawMessage
	}
	results := make(chan outcome, 2)

	first := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`"local-a"`), Method: "eth_blockNumber"}
	second := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`"local-b"`), Method: "eth_gasPrice"}
	callback := func(res *jsonrpc.Response) {
		results <- outcome{id: res.ID, result: res.Result}
	}
	p.SendAsync(first, callback)
	p.SendAsync(second, callback)

	wireFirst := wallet.readRequest()
	wireSecond := wallet.readRequest()
	wallet.respond(wireSecond.ID, "0x2")
	wallet.respond(wireFirst.ID, "0x1")

	got := <-results
	assert.Equal(t, json.RawMessage(`"local-b"`), got.id)
	assert.JSONEq(t, `"0x2"`, string(got.result))
	got = <-results
	assert.Equal(t, json.RawMessage(`"local-a"`), got.id)
	assert.JSONEq(t, `"0x1"`, string(got.result))
}

func TestProviderErrorNormalized(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	startProvider(t, p)

	go func() {
		req := wallet.readRequest()
		wallet.respondError(req.ID, &jsonrpc.Error{Code: jsonrpc.CodeUserRejected})
	}()

	_, err := p.Request(context.Background(), "eth_requestAccounts", nil)
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeUserRejected, rpcErr.Code)
	assert.Equal(t, "user rejected the request", rpcErr.Message)
}

func TestProviderRemoteDisconnect(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventDisconnect, rec.record(EventDisconnect))
	p.On(EventClose, rec.record(EventClose))
	closed, _ := startProvider(t, p)

	// Leave one request pending across the disconnect.
	pendingRes := make(chan *jsonrpc.Response, 1)
	p.SendAsync(&jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "eth_blockNumber"}, func(res *jsonrpc.Response) {
		pendingRes <- res
	})
	wallet.readRequest()

	require.NoError(t, wallet.duplex.Close())
	assert.ErrorIs(t, waitClosed(t, closed), io.EOF)

	// The pending request failed with the disconnected code.
	res := <-pendingRes
	require.NotNil(t, res.Error)
	assert.Equal(t, jsonrpc.CodeDisconnected, res.Error.Code)
	assert.Equal(t, 0, p.engine.pendingCount())

	// Both event names fired with a remote-origin reason.
	rec.waitCount(t, EventDisconnect, 1)
	rec.waitCount(t, EventClose, 1)
	payload, ok := rec.last(EventDisconnect)
	require.True(t, ok)
	reason, isReason := payload.(DisconnectReason)
	require.True(t, isReason)
	assert.True(t, reason.Remote)

	// Dispatching after the disconnect fails fast without wire traffic.
	assert.False(t, p.IsConnected())
	_, err := p.Request(context.Background(), "eth_chainId", nil)
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeDisconnected, rpcErr.Code)
}

func TestProviderLocalShutdown(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventDisconnect, rec.record(EventDisconnect))
	closed, cancel := startProvider(t, p)

	cancel()
	assert.NoError(t, waitClosed(t, closed))

	rec.waitCount(t, EventDisconnect, 1)
	payload, _ := rec.last(EventDisconnect)
	reason := payload.(DisconnectReason)
	assert.False(t, reason.Remote)
	assert.NoError(t, reason.Err)
	assert.Equal(t, StatusDisconnected, p.Status())
}

func TestProviderStateSnapshotOverWire(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventChainChanged, rec.record(EventChainChanged))
	p.On(EventAccountsChanged, rec.record(EventAccountsChanged))
	startProvider(t, p)

	wallet.pushState(Snapshot{
		Accounts:       []string{addrA},
		ChainID:        ptr("0x5"),
		NetworkVersion: ptr("5"),
	})

	rec.waitCount(t, EventChainChanged, 1)
	rec.waitCount(t, EventAccountsChanged, 1)
	assert.Equal(t, "0x5", p.ChainID())
	assert.Equal(t, "5", p.NetworkVersion())
	assert.Equal(t, addrA, p.SelectedAddress())
	accounts, ok := p.Accounts()
	require.True(t, ok)
	assert.Equal(t, []string{addrA}, accounts)
}

func TestProviderSubscriptionNotification(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventMessage, rec.record(EventMessage))
	p.On(EventNotification, rec.record(EventNotification))
	startProvider(t, p)

	wallet.notify(notificationSubscription, map[string]any{"subscription": "0xabc", "result": "0x1"})

	rec.waitCount(t, EventMessage, 1)
	rec.waitCount(t, EventNotification, 1)

	payload, _ := rec.last(EventMessage)
	msg, ok := payload.(ProviderMessage)
	require.True(t, ok)
	assert.Equal(t, notificationSubscription, msg.Type)
	assert.JSONEq(t, `{"subscription":"0xabc","result":"0x1"}`, string(msg.Data))
}

func TestProviderAccountsNotification(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventAccountsChanged, rec.record(EventAccountsChanged))
	startProvider(t, p)

	wallet.notify(notificationAccountsChanged, []string{addrA})

	rec.waitCount(t, EventAccountsChanged, 1)
	payload, _ := rec.last(EventAccountsChanged)
	assert.Equal(t, []string{addrA}, payload)
}

func TestProviderAccountsInterceptedBeforeCaller(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	startProvider(t, p)

	go func() {
		req := wallet.readRequest()
		wallet.respond(req.ID, []string{addrB})
	}()

	// The cached state must reflect the result by the time the caller
	// observes it.
	observed := make(chan string, 1)
	p.SendAsync(&jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: methodEthAccounts}, func(res *jsonrpc.Response) {
		observed <- p.SelectedAddress()
	})

	assert.Equal(t, addrB, <-observed)
}

func TestProviderUnlockRefreshOverWire(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	startProvider(t, p)

	wallet.pushState(Snapshot{IsUnlocked: ptr(true)})

	// The unlock transition dispatches an account refresh on its own.
	req := wallet.readRequest()
	assert.Equal(t, methodEthAccounts, req.Method)
	wallet.respond(req.ID, []string{addrA})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.SelectedAddress() == addrA {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, addrA, p.SelectedAddress())
	unlocked, ok := p.IsUnlocked()
	require.True(t, ok)
	assert.True(t, unlocked)
}

func TestProviderIgnoredChannelOverWire(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{})
	rec := &eventRecorder{}
	p.On(EventMessage, rec.record(EventMessage))
	startProvider(t, p)

	wallet.send("phishing", map[string]string{"hook": "ignored"})
	wallet.notify(notificationSubscription, map[string]string{"ok": "yes"})

	// Only the subscription notification surfaces.
	rec.waitCount(t, EventMessage, 1)
	assert.Equal(t, 1, rec.count(EventMessage))
}

func TestProviderCallTimeout(t *testing.T) {
	t.Parallel()

	p, wallet := newTestProvider(t, Config{CallTimeout: 20 * time.Millisecond})
	startProvider(t, p)

	go wallet.readRequest()

	_, err := p.Request(context.Background(), "eth_blockNumber", nil)
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeInternal, rpcErr.Code)
	assert.Equal(t, 0, p.engine.pendingCount())
}
