package mcp

import (
	"context"
	"iter"
)

// ServerTransport provides the server-side communication layer in the MCP protocol.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they are initiated.
	// Each yielded Session represents a unique client connection and provides methods for
	// bidirectional communication. The implementation must guarantee that each session ID
	// is unique across all active connections.
	//
	// The implementation should exit the iteration when the Shutdown method is called, or
	// when it can't produce any more sessions (a stdio transport has exactly one).
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the ServerTransport to clean up resources. The implementations should not
	// close all the Session it produce, the caller would already do that when calling this method. The caller
	// is guaranteed to call this method only once.
	Shutdown(ctx context.Context) error
}

// Session represents a bidirectional communication channel between server and client.
type Session interface {
	// ID returns the unique identifier for this session. The implementation must
	// guarantee that session IDs are unique across all active sessions managed.
	ID() string

	// Send transmits a message to the client.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields messages received from the other party,
	// in the order they were received. The implementations should exit the iteration if
	// the session is closed or the underlying stream reaches its end.
	Messages() iter.Seq[JSONRPCMessage]

	// Stop stops the session. It may be called more than once.
	Stop()
}

// PromptServer defines the interface for managing prompts in the MCP protocol.
type PromptServer interface {
	// ListPrompts returns a paginated list of available prompts.
	// Returns error if operation fails or context is cancelled.
	ListPrompts(context.Context, ListPromptsParams) (ListPromptResult, error)

	// GetPrompt retrieves a specific prompt template by name with the given arguments.
	// Returns error if prompt not found, arguments are invalid, or context is cancelled.
	// Errors wrapping ErrPromptNotFound or ErrInvalidParams are reported to the client
	// as invalid params.
	GetPrompt(context.Context, GetPromptParams) (GetPromptResult, error)
}

// ResourceServer defines the interface for managing resources in the MCP protocol.
type ResourceServer interface {
	// ListResources returns a paginated list of available resources.
	// Returns error if operation fails or context is cancelled.
	ListResources(context.Context, ListResourcesParams) (ListResourcesResult, error)

	// ReadResource retrieves a specific resource by its URI.
	// Returns error if resource not found, cannot be read, or context is cancelled.
	// Errors wrapping ErrResourceNotFound are reported with the resource-not-found code.
	ReadResource(context.Context, ReadResourceParams) (ReadResourceResult, error)
}

// ToolServer defines the interface for managing tools in the MCP protocol.
type ToolServer interface {
	// ListTools returns a paginated list of available tools. An empty list is valid: the
	// tools capability is still advertised.
	ListTools(context.Context, ListToolsParams) (ListToolsResult, error)

	// CallTool executes a specific tool with the given arguments. Errors wrapping
	// ErrToolNotFound become protocol errors, any other error is returned to the client
	// as a CallToolResult with IsError set.
	CallTool(context.Context, CallToolParams) (CallToolResult, error)
}
