package mcp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mcp "github.com/TangGee/deep-research-mcp"
)

type mockPromptServer struct {
	mu        sync.Mutex
	getParams []mcp.GetPromptParams
	getErr    error
}

type mockResourceServer struct {
	mu         sync.Mutex
	readParams []mcp.ReadResourceParams
	readErr    error
}

type mockToolServer struct {
	callErr error
}

var testServerInfo = mcp.Info{Name: "test-server", Version: "1.0"}

func (m *mockPromptServer) ListPrompts(context.Context, mcp.ListPromptsParams) (mcp.ListPromptResult, error) {
	return mcp.ListPromptResult{
		Prompts: []mcp.Prompt{
			{
				Name: "test-prompt",
				Arguments: []mcp.PromptArgument{
					{Name: "topic", Required: true},
				},
			},
		},
	}, nil
}

func (m *mockPromptServer) GetPrompt(_ context.Context, params mcp.GetPromptParams) (mcp.GetPromptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getParams = append(m.getParams, params)
	if m.getErr != nil {
		return mcp.GetPromptResult{}, m.getErr
	}
	return mcp.GetPromptResult{
		Description: "prompt for " + params.Arguments["topic"],
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.Content{Type: mcp.ContentTypeText, Text: params.Arguments["topic"]},
			},
		},
	}, nil
}

func (m *mockPromptServer) gets() []mcp.GetPromptParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]mcp.GetPromptParams(nil), m.getParams...)
}

func (m *mockResourceServer) ListResources(context.Context, mcp.ListResourcesParams) (mcp.ListResourcesResult, error) {
	return mcp.ListResourcesResult{
		Resources: []mcp.Resource{
			{URI: "test://fast", Name: "fast"},
			{URI: "test://slow", Name: "slow"},
		},
	}, nil
}

// ReadResource echoes the URI back. Reading test://slow takes a while, so a server that
// handled requests concurrently would answer a later request first.
func (m *mockResourceServer) ReadResource(ctx context.Context, params mcp.ReadResourceParams) (mcp.ReadResourceResult, error) {
	m.mu.Lock()
	m.readParams = append(m.readParams, params)
	readErr := m.readErr
	m.mu.Unlock()

	if readErr != nil {
		return mcp.ReadResourceResult{}, readErr
	}

	if params.URI == "test://slow" {
		select {
		case <-ctx.Done():
			return mcp.ReadResourceResult{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			{URI: params.URI, MimeType: "text/plain", Text: params.URI},
		},
	}, nil
}

func (m *mockToolServer) ListTools(context.Context, mcp.ListToolsParams) (mcp.ListToolsResult, error) {
	// A nil list must still be reported as an empty array.
	return mcp.ListToolsResult{}, nil
}

func (m *mockToolServer) CallTool(_ context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	if m.callErr != nil {
		return mcp.CallToolResult{}, m.callErr
	}
	return mcp.CallToolResult{}, fmt.Errorf("%w: %s", mcp.ErrToolNotFound, params.Name)
}

// testClient talks raw newline-delimited JSON-RPC to a Server running on a StdIO transport.
type testClient struct {
	t        *testing.T
	writer   *io.PipeWriter
	received chan mcp.JSONRPCMessage

	srv    mcp.Server
	served chan struct{}
}

func setupStdIO(t *testing.T, options ...mcp.ServerOption) *testClient {
	t.Helper()

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	transport := mcp.NewStdIO(serverReader, serverWriter)
	srv := mcp.NewServer(testServerInfo, transport, options...)

	c := &testClient{
		t:        t,
		writer:   clientWriter,
		received: make(chan mcp.JSONRPCMessage, 100),
		srv:      srv,
		served:   make(chan struct{}),
	}

	go func() {
		defer close(c.served)
		srv.Serve()
	}()

	go func() {
		defer close(c.received)
		reader := bufio.NewReader(clientReader)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var msg mcp.JSONRPCMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				t.Errorf("server wrote invalid JSON %q: %v", line, err)
				continue
			}
			c.received <- msg
		}
	}()

	t.Cleanup(func() {
		_ = clientWriter.Close()
		select {
		case <-c.served:
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for server to finish serving")
		}
		_ = clientReader.Close()
	})

	return c
}

func (c *testClient) sendLine(line string) {
	c.t.Helper()

	_, err := io.WriteString(c.writer, line+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) send(msg mcp.JSONRPCMessage) {
	c.t.Helper()

	msg.JSONRPC = mcp.JSONRPCVersion
	bs, err := json.Marshal(msg)
	require.NoError(c.t, err)
	c.sendLine(string(bs))
}

func (c *testClient) request(id int, method string, params any) {
	c.t.Helper()

	msg := mcp.JSONRPCMessage{
		ID:     mcp.NewRequestID(id),
		Method: method,
	}
	if params != nil {
		bs, err := json.Marshal(params)
		require.NoError(c.t, err)
		msg.Params = bs
	}
	c.send(msg)
}

func (c *testClient) receive() mcp.JSONRPCMessage {
	c.t.Helper()

	select {
	case msg, ok := <-c.received:
		require.True(c.t, ok, "server output closed")
		return msg
	case <-time.After(5 * time.Second):
		c.t.Fatal("timeout waiting for response")
		return mcp.JSONRPCMessage{}
	}
}

// expectNothing asserts the server wrote nothing within a short window.
func (c *testClient) expectNothing() {
	c.t.Helper()

	select {
	case msg := <-c.received:
		c.t.Fatalf("unexpected message from server: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func (c *testClient) call(id int, method string, params any) mcp.JSONRPCMessage {
	c.t.Helper()

	c.request(id, method, params)
	return c.receive()
}

func (c *testClient) initialize() {
	c.t.Helper()

	res := c.call(1, mcp.MethodInitialize, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test-client", "version": "1.0"},
	})
	require.Nil(c.t, res.Error)
	c.send(mcp.JSONRPCMessage{Method: "notifications/initialized"})
}

func (c *testClient) closeInput() {
	c.t.Helper()

	require.NoError(c.t, c.writer.Close())
}

func decodeResult[T any](t *testing.T, msg mcp.JSONRPCMessage) T {
	t.Helper()

	require.Nil(t, msg.Error, "unexpected error response")
	var v T
	require.NoError(t, json.Unmarshal(msg.Result, &v))
	return v
}

func errorCode(t *testing.T, msg mcp.JSONRPCMessage) int {
	t.Helper()

	require.NotNil(t, msg.Error, "expected error response, got result %s", msg.Result)
	return msg.Error.Code
}

var errBoom = errors.New("boom")
