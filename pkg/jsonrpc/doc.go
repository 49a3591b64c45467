// Package jsonrpc defines the JSON-RPC 2.0 wire types exchanged with
// the remote wallet process, together with the structured error shape
// every failure in the request pipeline is normalized into.
//
// Three message kinds travel over the wire:
//
//   - requests:      {"jsonrpc": "2.0", "id": ..., "method": ..., "params": ...}
//   - responses:     {"jsonrpc": "2.0", "id": ..., "result": ...} or
//     {"jsonrpc": "2.0", "id": ..., "error": {"code": ..., "message": ..., "data": ...}}
//   - notifications: requests without an "id" member
//
// Caller-supplied request ids are opaque: they may be JSON numbers or
// strings and are carried around as raw JSON so the transport never has
// to interpret them.
package jsonrpc
