package mcp

import (
	"errors"
)

// Sentinel errors that server implementations wrap so the Server can pick the JSON-RPC
// error code of the response. The wrapping error's message is what the client sees.
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrPromptNotFound   = errors.New("prompt not found")
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidParams    = errors.New("invalid params")
)

var (
	errInvalidJSON        = errors.New("invalid json")
	errNotInitialized     = JSONRPCError{Code: jsonRPCInvalidRequestCode, Message: "session not initialized"}
	errAlreadyInitialized = JSONRPCError{Code: jsonRPCInvalidRequestCode, Message: "session already initialized"}
)

// rpcError converts an error returned while handling a request into the error object of
// the response. A JSONRPCError anywhere in the chain is used as is.
func rpcError(err error) *JSONRPCError {
	var jsonErr JSONRPCError
	if errors.As(err, &jsonErr) {
		return &jsonErr
	}

	code := jsonRPCInternalErrorCode
	switch {
	case errors.Is(err, ErrResourceNotFound):
		code = jsonRPCResourceNotFoundCode
	case errors.Is(err, ErrPromptNotFound), errors.Is(err, ErrToolNotFound), errors.Is(err, ErrInvalidParams):
		code = jsonRPCInvalidParamsCode
	}

	return &JSONRPCError{
		Code:    code,
		Message: err.Error(),
	}
}
