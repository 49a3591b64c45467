package providers

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/MetaMask/providers-sub001/pkg/jsonrpc"
)

// syncMethods are the legacy methods answered synchronously from the
// cached state, never touching the wire. Each use logs a deprecation
// warning once per method per provider instance.
var syncMethods = map[string]struct{}{
	methodEthAccounts:     {},
	methodEthCoinbase:     {},
	methodUninstallFilter: {},
	methodNetVersion:      {},
}

// Send is the legacy request entry point. Allow-listed methods are
// answered synchronously from the cached state; everything else runs
// through the regular pipeline. Variadic params become the positional
// parameter sequence; a single slice argument is passed through as-is.
//
// Deprecated: use Request.
func (p *Provider) Send(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if _, ok := syncMethods[method]; ok {
		p.warnDeprecatedSync(method)
		return p.answerFromCache(method)
	}

	coerced, rpcErr := coerceParams(params)
	if rpcErr != nil {
		p.metrics.RequestsRejected.Inc()
		return nil, rpcErr
	}
	return p.Request(ctx, method, coerced)
}

// SendAsync is the legacy callback-style entry point. The callback is
// invoked exactly once with the response.
//
// Deprecated: use Request.
func (p *Provider) SendAsync(req *jsonrpc.Request, cb ResponseCallback) {
	p.engine.Dispatch(req, cb)
}

// SendBatch forwards an array of requests as one payload and blocks
// until every element has resolved or ctx ends. The returned responses
// are in request order. A malformed element rejects the whole batch
// before any wire traffic.
//
// Deprecated: use Request per call.
func (p *Provider) SendBatch(ctx context.Context, reqs []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	resCh := make(chan []*jsonrpc.Response, 1)
	if rpcErr := p.engine.DispatchBatch(reqs, func(responses []*jsonrpc.Response) {
		resCh <- responses
	}); rpcErr != nil {
		return nil, rpcErr
	}

	select {
	case responses := <-resCh:
		return responses, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enable requests account access and returns the exposed account list.
//
// Deprecated: use Request with eth_requestAccounts.
func (p *Provider) Enable(ctx context.Context) ([]string, error) {
	result, err := p.Request(ctx, methodRequestAccounts, nil)
	if err != nil {
		return nil, err
	}

	var accounts []string
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, jsonrpc.Normalize(err)
	}
	return accounts, nil
}

// answerFromCache resolves an allow-listed legacy method from the
// cached state. The answers reflect whatever has been synchronized so
// far; before the first snapshot they are the documented empty values.
func (p *Provider) answerFromCache(method string) (json.RawMessage, error) {
	var value any
	switch method {
	case methodEthAccounts:
		accounts, ok := p.sync.accountsValue()
		if !ok {
			accounts = []string{}
		}
		value = accounts
	case methodEthCoinbase:
		if addr := p.sync.selectedAddress(); addr != "" {
			value = addr
		}
	case methodUninstallFilter:
		value = true
	case methodNetVersion:
		value = p.sync.networkVersionValue()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, jsonrpc.Normalize(err)
	}
	return data, nil
}

// warnDeprecatedSync logs the deprecation warning for a synchronous
// method, once per method per provider instance.
func (p *Provider) warnDeprecatedSync(method string) {
	p.legacyMu.Lock()
	if p.legacyWarned == nil {
		p.legacyWarned = make(map[string]bool)
	}
	warned := p.legacyWarned[method]
	p.legacyWarned[method] = true
	p.legacyMu.Unlock()

	if !warned {
		p.logger.Warn("synchronous legacy method answered from cached state; this usage is deprecated",
			"method", method)
	}
}

// coerceParams converts legacy variadic arguments into a positional
// parameter sequence. A single slice or array argument is already a
// sequence and passes through unchanged.
func coerceParams(params []any) (any, *jsonrpc.Error) {
	if len(params) == 0 {
		return nil, nil
	}
	if len(params) == 1 && params[0] != nil {
		switch reflect.TypeOf(params[0]).Kind() {
		case reflect.Slice, reflect.Array:
			return params[0], nil
		case reflect.Map, reflect.Struct, reflect.Ptr:
			return params[0], nil
		}
	}

	for _, param := range params {
		if param == nil {
			continue
		}
		switch reflect.TypeOf(param).Kind() {
		case reflect.Func, reflect.Chan:
			return nil, jsonrpc.InvalidRequestError("params contain a value that cannot be serialized")
		}
	}
	return params, nil
}
