package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server implements a Model Context Protocol (MCP) server that exposes prompts, resources
// and tools to a remote caller. It performs the capability handshake with each client
// session and then processes that session's requests strictly one at a time, in the order
// they arrive: a request is fully handled and its response written before the next one
// is read.
type Server struct {
	info Info

	instructions string
	capabilities ServerCapabilities
	transport    ServerTransport

	promptServer   PromptServer
	resourceServer ResourceServer
	toolServer     ToolServer

	sendTimeout time.Duration

	logger *slog.Logger

	onClientConnected    func(string, Info)
	onClientDisconnected func(string)

	sessionsWaitGroup *sync.WaitGroup

	done     chan struct{}
	doneOnce *sync.Once
}

type serverSession struct {
	session Session
	logger  *slog.Logger

	serverCap    ServerCapabilities
	serverInfo   Info
	instructions string
	sendTimeout  time.Duration

	promptServer   PromptServer
	resourceServer ResourceServer
	toolServer     ToolServer

	onClientConnected func(string, Info)
}

var defaultServerSendTimeout = 30 * time.Second

// NewServer creates a new Model Context Protocol (MCP) server with the specified configuration.
//
// The advertised capabilities follow the configured implementations: a category is
// declared if and only if a server for it was given, even when that server has nothing
// to list.
func NewServer(info Info, transport ServerTransport, options ...ServerOption) Server {
	s := Server{
		info:              info,
		transport:         transport,
		logger:            slog.Default(),
		sessionsWaitGroup: &sync.WaitGroup{},
		done:              make(chan struct{}),
		doneOnce:          &sync.Once{},
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.sendTimeout == 0 {
		s.sendTimeout = defaultServerSendTimeout
	}

	s.capabilities = ServerCapabilities{}
	if s.promptServer != nil {
		s.capabilities.Prompts = &PromptsCapability{}
	}
	if s.resourceServer != nil {
		s.capabilities.Resources = &ResourcesCapability{}
	}
	if s.toolServer != nil {
		s.capabilities.Tools = &ToolsCapability{}
	}

	return s
}

// WithPromptServer returns a ServerOption that configures the prompt server implementation.
func WithPromptServer(srv PromptServer) ServerOption {
	return func(s *Server) {
		s.promptServer = srv
	}
}

// WithResourceServer returns a ServerOption that configures the resource server implementation.
func WithResourceServer(srv ResourceServer) ServerOption {
	return func(s *Server) {
		s.resourceServer = srv
	}
}

// WithToolServer returns a ServerOption that configures the tool server implementation.
func WithToolServer(srv ToolServer) ServerOption {
	return func(s *Server) {
		s.toolServer = srv
	}
}

// WithInstructions returns a ServerOption that configures the server instructions.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithServerSendTimeout returns a ServerOption that configures the server's send timeout.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithServerOnClientConnected sets the callback for when a client completes the handshake.
// The callback's parameters are the session ID and the Info the client sent.
func WithServerOnClientConnected(onClientConnected func(string, Info)) ServerOption {
	return func(s *Server) {
		s.onClientConnected = onClientConnected
	}
}

// WithServerOnClientDisconnected sets the callback for when a client session ends.
// The callback's parameter is the ID of the session.
func WithServerOnClientDisconnected(onClientDisconnected func(string)) ServerOption {
	return func(s *Server) {
		s.onClientDisconnected = onClientDisconnected
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "deep-research-mcp"),
			slog.String("component", "server"),
		)
	}
}

// Serve accepts sessions from the transport and serves each of them until its stream
// ends. Serve blocks until the transport stops yielding sessions and every session
// has finished; for a stdio transport that is when the input reaches end-of-stream.
func (s Server) Serve() {
	// This loop would break when the transport is closed.
	for sess := range s.transport.Sessions() {
		ss := serverSession{
			session:           sess,
			logger:            s.logger.With(slog.String("sessionID", sess.ID())),
			serverCap:         s.capabilities,
			serverInfo:        s.info,
			instructions:      s.instructions,
			sendTimeout:       s.sendTimeout,
			promptServer:      s.promptServer,
			resourceServer:    s.resourceServer,
			toolServer:        s.toolServer,
			onClientConnected: s.onClientConnected,
		}

		s.sessionsWaitGroup.Add(1)

		go func() {
			defer s.sessionsWaitGroup.Done()

			// Stop the session if the server is shut down while the session is still reading.
			finished := make(chan struct{})
			go func() {
				select {
				case <-s.done:
					ss.session.Stop()
				case <-finished:
				}
			}()

			ss.serve()
			close(finished)
			ss.session.Stop()

			if s.onClientDisconnected != nil {
				s.onClientDisconnected(ss.session.ID())
			}
		}()
	}

	s.sessionsWaitGroup.Wait()
}

// Shutdown gracefully shuts down the server by terminating all active sessions and cleaning up resources.
// It returns an error if the shutdown process fails or if the context is cancelled before the shutdown completes.
func (s Server) Shutdown(ctx context.Context) error {
	// Signal the server to shutdown and terminates all sessions
	s.doneOnce.Do(func() { close(s.done) })

	sessionsClosed := make(chan struct{})
	go func() {
		s.sessionsWaitGroup.Wait()
		close(sessionsClosed)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for sessions: %w", ctx.Err())
	case <-sessionsClosed:
	}

	// Close the transport so the Sessions loop in Serve breaks.
	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	return nil
}

// serve runs the read-dispatch-write cycle of one session until the session's message
// stream ends.
func (s serverSession) serve() {
	// All the handler calls of this session share this context, it is cancelled once
	// the stream is closed.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Before the handshake, other than ping and initialization, requests are rejected.
	initialized := false

	for msg := range s.session.Messages() {
		// Validate JSON-RPC version before processing any message
		if msg.JSONRPC != JSONRPCVersion {
			s.logger.Info("failed to handle message",
				slog.Any("message", msg),
				slog.String("err", errInvalidJSON.Error()),
			)
			continue
		}

		if msg.Method == "" {
			// The server never sends requests, so a response from the client has nothing to
			// correlate with.
			s.logger.Debug("ignoring response from client", slog.String("id", msg.ID.String()))
			continue
		}

		if msg.ID.IsZero() {
			s.handleNotification(msg, initialized)
			continue
		}

		var result any
		var err error

		switch msg.Method {
		case MethodPing:
			result = struct{}{}
		case MethodInitialize:
			if initialized {
				err = errAlreadyInitialized
				break
			}
			result, err = s.initializationHandshake(msg)
			initialized = err == nil
		default:
			if !initialized {
				err = errNotInitialized
				break
			}
			result, err = s.handleServerImplementationMessage(ctx, msg)
		}

		s.respond(msg, result, err)
	}
}

func (s serverSession) handleNotification(msg JSONRPCMessage, initialized bool) {
	switch msg.Method {
	case methodNotificationsInitialized:
		if !initialized {
			s.logger.Warn("received initialized notification before initialize request")
			return
		}
		s.logger.Debug("client confirmed initialization")
	default:
		s.logger.Debug("ignoring notification", slog.String("method", msg.Method))
	}
}

func (s serverSession) respond(msg JSONRPCMessage, result any, err error) {
	resMsg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msg.ID,
	}

	if err != nil {
		resMsg.Error = rpcError(err)
		s.logger.Warn("failed to handle request",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID.String()),
			slog.String("err", err.Error()))
	} else {
		resBs, mErr := json.Marshal(result)
		if mErr != nil {
			s.logger.Error("failed to marshal result",
				slog.String("method", msg.Method),
				slog.String("err", mErr.Error()))
			resMsg.Error = &JSONRPCError{
				Code:    jsonRPCInternalErrorCode,
				Message: fmt.Errorf("failed to marshal result: %w", mErr).Error(),
			}
		} else {
			resMsg.Result = resBs
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := s.session.Send(ctx, resMsg); err != nil {
		s.logger.Error("failed to send result", slog.String("err", err.Error()))
	}
}

func (s serverSession) initializationHandshake(msg JSONRPCMessage) (initializeResult, error) {
	var params initializeParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return initializeResult{}, err
	}

	version := negotiateProtocolVersion(params.ProtocolVersion)
	s.logger.Info("client initialized",
		slog.String("client", params.ClientInfo.Name),
		slog.String("clientVersion", params.ClientInfo.Version),
		slog.String("requestedProtocolVersion", params.ProtocolVersion),
		slog.String("protocolVersion", version))

	if s.onClientConnected != nil {
		s.onClientConnected(s.session.ID(), params.ClientInfo)
	}

	return initializeResult{
		ProtocolVersion: version,
		Capabilities:    s.serverCap,
		ServerInfo:      s.serverInfo,
		Instructions:    s.instructions,
	}, nil
}

func (s serverSession) handleServerImplementationMessage(ctx context.Context, msg JSONRPCMessage) (any, error) {
	switch msg.Method {
	case MethodPromptsList:
		return s.callListPrompts(ctx, msg)
	case MethodPromptsGet:
		return s.callGetPrompt(ctx, msg)
	case MethodResourcesList:
		return s.callListResources(ctx, msg)
	case MethodResourcesRead:
		return s.callReadResource(ctx, msg)
	case MethodToolsList:
		return s.callListTools(ctx, msg)
	case MethodToolsCall:
		return s.callCallTool(ctx, msg)
	default:
		return nil, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: fmt.Sprintf("method not found: %s", msg.Method),
		}
	}
}

func (s serverSession) callListPrompts(ctx context.Context, msg JSONRPCMessage) (ListPromptResult, error) {
	if s.promptServer == nil {
		return ListPromptResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "prompts not supported by server",
		}
	}

	var params ListPromptsParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return ListPromptResult{}, err
	}

	return s.promptServer.ListPrompts(ctx, params)
}

func (s serverSession) callGetPrompt(ctx context.Context, msg JSONRPCMessage) (GetPromptResult, error) {
	if s.promptServer == nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "prompts not supported by server",
		}
	}

	var params GetPromptParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return GetPromptResult{}, err
	}

	return s.promptServer.GetPrompt(ctx, params)
}

func (s serverSession) callListResources(ctx context.Context, msg JSONRPCMessage) (ListResourcesResult, error) {
	if s.resourceServer == nil {
		return ListResourcesResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ListResourcesParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return ListResourcesResult{}, err
	}

	return s.resourceServer.ListResources(ctx, params)
}

func (s serverSession) callReadResource(ctx context.Context, msg JSONRPCMessage) (ReadResourceResult, error) {
	if s.resourceServer == nil {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ReadResourceParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return ReadResourceResult{}, err
	}

	return s.resourceServer.ReadResource(ctx, params)
}

func (s serverSession) callListTools(ctx context.Context, msg JSONRPCMessage) (ListToolsResult, error) {
	if s.toolServer == nil {
		return ListToolsResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "tools not supported by server",
		}
	}

	var params ListToolsParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return ListToolsResult{}, err
	}

	ts, err := s.toolServer.ListTools(ctx, params)
	if err != nil {
		return ListToolsResult{}, err
	}
	if ts.Tools == nil {
		// An empty tool set is still a list.
		ts.Tools = []Tool{}
	}

	return ts, nil
}

func (s serverSession) callCallTool(ctx context.Context, msg JSONRPCMessage) (CallToolResult, error) {
	if s.toolServer == nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "tools not supported by server",
		}
	}

	var params CallToolParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return CallToolResult{}, err
	}

	result, err := s.toolServer.CallTool(ctx, params)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return CallToolResult{}, err
		}
		result = CallToolResult{
			Content: []Content{
				{
					Type: ContentTypeText,
					Text: err.Error(),
				},
			},
			IsError: true,
		}
	}

	return result, nil
}

// decodeParams unmarshals request params into v. Absent or null params leave v at its zero value.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}
	return nil
}

// negotiateProtocolVersion echoes the client's version when the server supports it and
// otherwise proposes the latest version the server knows.
func negotiateProtocolVersion(requested string) string {
	if slices.Contains(supportedProtocolVersions, requested) {
		return requested
	}
	return supportedProtocolVersions[len(supportedProtocolVersions)-1]
}
