package jsonrpc

import "fmt"

// Standard JSON-RPC 2.0 error codes plus the provider error codes
// defined by EIP-1193.
const (
	// CodeParse indicates the peer sent JSON that could not be parsed.
	CodeParse = -32700
	// CodeInvalidRequest indicates a malformed request object. Requests
	// failing local validation are rejected with this code before any
	// wire traffic happens.
	CodeInvalidRequest = -32600
	// CodeMethodNotFound indicates the method does not exist.
	CodeMethodNotFound = -32601
	// CodeInvalidParams indicates invalid method parameters.
	CodeInvalidParams = -32602
	// CodeInternal indicates an internal error.
	CodeInternal = -32603

	// CodeUserRejected indicates the user rejected the request.
	CodeUserRejected = 4001
	// CodeUnauthorized indicates the requested method or account has
	// not been authorized by the user.
	CodeUnauthorized = 4100
	// CodeUnsupportedMethod indicates the wallet does not support the
	// requested method.
	CodeUnsupportedMethod = 4200
	// CodeDisconnected indicates the provider is disconnected from all
	// chains. Every request dispatched after the connection ends fails
	// with this code, as does every request pending at that moment.
	CodeDisconnected = 4900
	// CodeChainDisconnected indicates the provider is disconnected from
	// the requested chain.
	CodeChainDisconnected = 4901
)

var defaultErrorMessages = map[int]string{
	CodeParse:             "parse error",
	CodeInvalidRequest:    "the request is not a valid request object",
	CodeMethodNotFound:    "the method does not exist or is not available",
	CodeInvalidParams:     "invalid method parameters",
	CodeInternal:          "internal JSON-RPC error",
	CodeUserRejected:      "user rejected the request",
	CodeUnauthorized:      "the requested account or method has not been authorized",
	CodeUnsupportedMethod: "the requested method is not supported",
	CodeDisconnected:      "the provider is disconnected from all chains",
	CodeChainDisconnected: "the provider is disconnected from the specified chain",
}

// Error is the single structured error shape every failure surfaced to
// a caller is coerced into: remote RPC errors, local validation
// failures and connection errors alike.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an Error with the given code and message. An empty
// message falls back to the default message for the code.
func NewError(code int, message string) *Error {
	if message == "" {
		message = defaultErrorMessages[code]
		if message == "" {
			message = "unknown error"
		}
	}
	return &Error{Code: code, Message: message}
}

// InvalidRequestError creates a client-side invalid request error.
func InvalidRequestError(message string) *Error {
	return NewError(CodeInvalidRequest, message)
}

// DisconnectedError creates the connection-unavailable error used to
// fail requests once the transport has ended.
func DisconnectedError() *Error {
	return NewError(CodeDisconnected, "")
}

// Normalize coerces an arbitrary error into the structured Error shape.
// Errors that already carry a code pass through unchanged; anything
// else becomes an internal error retaining the original message as
// data.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*Error); ok {
		if rpcErr.Message == "" {
			filled := *rpcErr
			filled.Message = defaultErrorMessages[filled.Code]
			return &filled
		}
		return rpcErr
	}

	normalized := NewError(CodeInternal, "")
	normalized.Data = err.Error()
	return normalized
}
