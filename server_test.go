package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/TangGee/deep-research-mcp"
)

func fullServerOptions() (*mockPromptServer, *mockResourceServer, *mockToolServer, []mcp.ServerOption) {
	ps := &mockPromptServer{}
	rs := &mockResourceServer{}
	ts := &mockToolServer{}
	return ps, rs, ts, []mcp.ServerOption{
		mcp.WithPromptServer(ps),
		mcp.WithResourceServer(rs),
		mcp.WithToolServer(ts),
	}
}

func TestInitialize(t *testing.T) {
	type result struct {
		ProtocolVersion string          `json:"protocolVersion"`
		Capabilities    json.RawMessage `json:"capabilities"`
		ServerInfo      mcp.Info        `json:"serverInfo"`
		Instructions    string          `json:"instructions"`
	}

	tests := []struct {
		name        string
		requested   string
		wantVersion string
	}{
		{name: "oldest supported version is echoed", requested: "2024-11-05", wantVersion: "2024-11-05"},
		{name: "newer supported version is echoed", requested: "2025-03-26", wantVersion: "2025-03-26"},
		{name: "unknown version gets latest", requested: "1999-01-01", wantVersion: "2025-06-18"},
		{name: "missing version gets latest", requested: "", wantVersion: "2025-06-18"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, opts := fullServerOptions()
			opts = append(opts, mcp.WithInstructions("research carefully"))
			c := setupStdIO(t, opts...)

			res := decodeResult[result](t, c.call(1, mcp.MethodInitialize, map[string]any{
				"protocolVersion": tt.requested,
				"capabilities":    map[string]any{},
				"clientInfo":      map[string]any{"name": "test-client", "version": "1.0"},
			}))

			assert.Equal(t, tt.wantVersion, res.ProtocolVersion)
			assert.JSONEq(t, `{"prompts":{},"resources":{},"tools":{}}`, string(res.Capabilities))
			assert.Equal(t, testServerInfo, res.ServerInfo)
			assert.Equal(t, "research carefully", res.Instructions)
		})
	}
}

func TestCapabilitiesFollowConfiguredServers(t *testing.T) {
	c := setupStdIO(t, mcp.WithPromptServer(&mockPromptServer{}))

	res := decodeResult[map[string]json.RawMessage](t, c.call(1, mcp.MethodInitialize, map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "test-client", "version": "1.0"},
	}))
	assert.JSONEq(t, `{"prompts":{}}`, string(res["capabilities"]))

	assert.Equal(t, -32601, errorCode(t, c.call(2, mcp.MethodToolsList, nil)))
	assert.Equal(t, -32601, errorCode(t, c.call(3, mcp.MethodResourcesList, nil)))
}

func TestRequestsBeforeInitialize(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)

	res := c.call(1, mcp.MethodPromptsList, nil)
	assert.Equal(t, -32600, errorCode(t, res))
	assert.Equal(t, "session not initialized", res.Error.Message)

	// Ping is answered before the handshake.
	res = c.call(2, mcp.MethodPing, nil)
	assert.JSONEq(t, `{}`, string(res.Result))

	c.initialize()

	res = c.call(3, mcp.MethodPromptsList, nil)
	assert.Nil(t, res.Error)
}

func TestSecondInitializeFails(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	res := c.call(2, mcp.MethodInitialize, map[string]any{"protocolVersion": "2024-11-05"})
	assert.Equal(t, -32600, errorCode(t, res))
}

func TestMethodNotFound(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	res := c.call(2, "resources/subscribe", map[string]any{"uri": "test://fast"})
	assert.Equal(t, -32601, errorCode(t, res))
	assert.Contains(t, res.Error.Message, "resources/subscribe")

	// The session keeps serving after an error.
	res = c.call(3, mcp.MethodPing, nil)
	assert.Nil(t, res.Error)
}

func TestRequestIDKeepsItsType(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	c.sendLine(`{"jsonrpc":"2.0","id":42,"method":"ping"}`)
	res := c.receive()
	raw, err := json.Marshal(res.ID)
	require.NoError(t, err)
	assert.Equal(t, `42`, string(raw))

	c.sendLine(`{"jsonrpc":"2.0","id":"abc-1","method":"ping"}`)
	res = c.receive()
	raw, err = json.Marshal(res.ID)
	require.NoError(t, err)
	assert.Equal(t, `"abc-1"`, string(raw))
}

func TestNotificationsAreNotAnswered(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	c.send(mcp.JSONRPCMessage{Method: "notifications/cancelled", Params: json.RawMessage(`{"requestId":1}`)})
	c.send(mcp.JSONRPCMessage{Method: "notifications/unknown"})
	c.expectNothing()
}

func TestMalformedInputIsSkipped(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	c.sendLine(`{not json`)
	c.sendLine(``)
	c.sendLine(`{"jsonrpc":"1.0","id":7,"method":"ping"}`)
	c.expectNothing()

	res := c.call(8, mcp.MethodPing, nil)
	assert.Equal(t, "8", res.ID.String())
}

func TestResponsesFollowRequestOrder(t *testing.T) {
	_, rs, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	// Written back to back: the slow read must still be answered first.
	c.request(10, mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: "test://slow"})
	c.request(11, mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: "test://fast"})
	c.request(12, mcp.MethodPing, nil)

	for _, want := range []string{"10", "11", "12"} {
		res := c.receive()
		assert.Equal(t, want, res.ID.String())
		assert.Nil(t, res.Error)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	require.Len(t, rs.readParams, 2)
	assert.Equal(t, "test://slow", rs.readParams[0].URI)
	assert.Equal(t, "test://fast", rs.readParams[1].URI)
}

func TestPrompt(t *testing.T) {
	ps, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	list := decodeResult[mcp.ListPromptResult](t, c.call(2, mcp.MethodPromptsList, nil))
	require.Len(t, list.Prompts, 1)
	assert.Equal(t, "test-prompt", list.Prompts[0].Name)

	res := decodeResult[mcp.GetPromptResult](t, c.call(3, mcp.MethodPromptsGet, mcp.GetPromptParams{
		Name:      "test-prompt",
		Arguments: map[string]string{"topic": "tides"},
	}))
	assert.Equal(t, "prompt for tides", res.Description)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, mcp.RoleUser, res.Messages[0].Role)

	gets := ps.gets()
	require.Len(t, gets, 1)
	assert.Equal(t, "tides", gets[0].Arguments["topic"])
}

func TestInvalidParams(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	c.sendLine(`{"jsonrpc":"2.0","id":2,"method":"prompts/get","params":{"name":5}}`)
	assert.Equal(t, -32602, errorCode(t, c.receive()))
}

func TestHandlerErrorCodes(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{
			name:        "resource not found",
			err:         fmt.Errorf("unknown resource: x: %w", mcp.ErrResourceNotFound),
			wantCode:    -32002,
			wantMessage: "unknown resource: x: resource not found",
		},
		{
			name:        "prompt not found",
			err:         fmt.Errorf("unknown prompt: x: %w", mcp.ErrPromptNotFound),
			wantCode:    -32602,
			wantMessage: "unknown prompt: x: prompt not found",
		},
		{
			name:        "invalid params",
			err:         fmt.Errorf("bad topic: %w", mcp.ErrInvalidParams),
			wantCode:    -32602,
			wantMessage: "bad topic: invalid params",
		},
		{
			name:        "explicit rpc error",
			err:         fmt.Errorf("wrapped: %w", mcp.JSONRPCError{Code: -32000, Message: "custom"}),
			wantCode:    -32000,
			wantMessage: "custom",
		},
		{
			name:        "anything else",
			err:         errBoom,
			wantCode:    -32603,
			wantMessage: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &mockResourceServer{readErr: tt.err}
			c := setupStdIO(t, mcp.WithResourceServer(rs))
			c.initialize()

			res := c.call(2, mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: "test://x"})
			assert.Equal(t, tt.wantCode, errorCode(t, res))
			assert.Equal(t, tt.wantMessage, res.Error.Message)
		})
	}
}

func TestTools(t *testing.T) {
	_, _, ts, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	res := c.call(2, mcp.MethodToolsList, nil)
	assert.JSONEq(t, `{"tools":[]}`, string(res.Result))

	res = c.call(3, mcp.MethodToolsCall, mcp.CallToolParams{Name: "search"})
	assert.Equal(t, -32602, errorCode(t, res))
	assert.Contains(t, res.Error.Message, "search")

	ts.callErr = errBoom
	result := decodeResult[mcp.CallToolResult](t, c.call(4, mcp.MethodToolsCall, mcp.CallToolParams{Name: "search"}))
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "boom", result.Content[0].Text)
}

func TestServeEndsOnEndOfInput(t *testing.T) {
	var mu sync.Mutex
	var connected, disconnected []string

	c := setupStdIO(t,
		mcp.WithPromptServer(&mockPromptServer{}),
		mcp.WithServerOnClientConnected(func(id string, info mcp.Info) {
			mu.Lock()
			defer mu.Unlock()
			connected = append(connected, id+"/"+info.Name)
		}),
		mcp.WithServerOnClientDisconnected(func(id string) {
			mu.Lock()
			defer mu.Unlock()
			disconnected = append(disconnected, id)
		}),
	)
	c.initialize()

	// A request still in flight when the input ends is answered before the session closes.
	c.request(2, mcp.MethodPromptsList, nil)
	c.closeInput()

	res := c.receive()
	assert.Equal(t, "2", res.ID.String())

	select {
	case <-c.served:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, connected, 1)
	require.Len(t, disconnected, 1)
	assert.Equal(t, disconnected[0]+"/test-client", connected[0])
}

func TestShutdown(t *testing.T) {
	_, _, _, opts := fullServerOptions()
	c := setupStdIO(t, opts...)
	c.initialize()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.srv.Shutdown(ctx))

	select {
	case <-c.served:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}
