package rpc

import (
	"errors"
	"fmt"
)

// CodeNotFound is the JSON-RPC error code for a missing ledger entry.
const CodeNotFound = -32004

var (
	// ErrNotFound is returned when the requested contract does not exist.
	ErrNotFound = errors.New("contract not found")

	// ErrTransport is returned when the server cannot be reached or replies
	// with something other than a JSON-RPC response.
	ErrTransport = errors.New("rpc transport failure")

	// ErrRemote is returned for JSON-RPC error responses.
	ErrRemote = errors.New("rpc call failed")

	// ErrEmptyResult is returned when a successful response lacks the value
	// the call exists to produce.
	ErrEmptyResult = errors.New("rpc result is empty")
)

// RPCError describes a failed call to the network RPC service.
type RPCError struct {
	Method  string
	Code    int // JSON-RPC error code, 0 for transport failures
	Message string
	Err     error
}

func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("rpc %s: %s (code %d)", e.Method, e.Message, e.Code)
	}
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// NewRPCError creates a new RPCError.
func NewRPCError(method string, code int, message string, err error) *RPCError {
	return &RPCError{
		Method:  method,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
