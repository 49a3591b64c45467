package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the protocol version stamped on every outbound message.
const Version = "2.0"

var nullLiteral = []byte("null")

// Request is a JSON-RPC request or, when ID is absent, a notification.
//
// ID and Params are kept as raw JSON: ids are caller-controlled and
// opaque (number or string), and params are only interpreted by the
// remote peer.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a request for the given method, marshaling params
// if any are provided. The ID is left unset; the request pipeline
// assigns wire ids on dispatch.
func NewRequest(method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("error marshaling params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, nullLiteral)
}

// Validate checks the request is a well-formed request object: the
// method must be a non-empty string and params, when present, must be
// a JSON array or object. A literal null params value is rejected.
func (r *Request) Validate() *Error {
	if r == nil {
		return InvalidRequestError("request must not be nil")
	}
	if r.Method == "" {
		return InvalidRequestError("method must be a non-empty string")
	}
	if len(r.Params) > 0 {
		trimmed := bytes.TrimSpace(r.Params)
		if len(trimmed) == 0 || (trimmed[0] != '[' && trimmed[0] != '{') {
			return InvalidRequestError("params must be an array or an object")
		}
	}
	return nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is
// set on a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Err returns the response error coerced into the structured shape, or
// nil for a success response.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return Normalize(r.Error)
}

// UnmarshalResult decodes the response result into v.
func (r *Response) UnmarshalResult(v any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("response has no result")
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("error unmarshaling result: %w", err)
	}
	return nil
}

// Message is the union of everything the peer can send on the RPC
// sub-channel. Inbound bytes are decoded into a Message first and then
// classified as a response or a notification.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsResponse reports whether the message is a response to some request:
// it carries an id and either a result or an error member.
func (m *Message) IsResponse() bool {
	if len(m.ID) == 0 || bytes.Equal(m.ID, nullLiteral) {
		return false
	}
	return len(m.Result) > 0 || m.Error != nil
}

// IsNotification reports whether the message is a server-initiated
// notification: a method call without an id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && (len(m.ID) == 0 || bytes.Equal(m.ID, nullLiteral))
}

// Response converts the message into a Response. Only meaningful when
// IsResponse is true.
func (m *Message) Response() *Response {
	return &Response{
		JSONRPC: m.JSONRPC,
		ID:      m.ID,
		Result:  m.Result,
		Error:   m.Error,
	}
}

// NumberID encodes n as a raw JSON id.
func NumberID(n uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(n, 10))
}

// ParseNumberID decodes a raw JSON id produced by NumberID. It returns
// false for string ids, fractional numbers or anything else that is not
// an unsigned integer literal.
func ParseNumberID(id json.RawMessage) (uint64, bool) {
	n, err := strconv.ParseUint(string(bytes.TrimSpace(id)), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
