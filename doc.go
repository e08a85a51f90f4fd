// Package mcp implements the server side of the Model Context Protocol (MCP), the JSON-RPC 2.0
// based protocol LLM clients use to discover and fetch prompts, resources and tools from an
// external process. This implementation follows the official specification from
// https://spec.modelcontextprotocol.io/specification/.
//
// A Server is built from an Info, a ServerTransport and the implementations of the capability
// categories it offers (PromptServer, ResourceServer, ToolServer). It performs the initialize
// handshake with each session, then reads, dispatches and answers that session's requests one
// at a time, in arrival order. Two transports are provided: StdIO, a single session of
// newline-delimited JSON over a reader/writer pair, and SSEServer, one session per HTTP
// Server-Sent Events connection.
//
// Handler errors are mapped to JSON-RPC error codes by wrapping the sentinel errors of this
// package (ErrResourceNotFound, ErrPromptNotFound, ErrToolNotFound, ErrInvalidParams); any
// other error is reported as an internal error. The deep-research capability set lives in
// servers/research.
package mcp
