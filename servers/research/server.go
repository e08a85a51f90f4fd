package research

import (
	"context"
	"fmt"
	"log/slog"

	mcp "github.com/TangGee/deep-research-mcp"
)

// Server implements the deep-research capability set of the Model Context Protocol. It
// exposes the research notes and data as resources, the deep-research prompt, and an
// empty tool list: searching and reading sources is left entirely to the caller.
//
// Getting the prompt is the only operation with a side effect: the question it is given
// becomes the question of the research record, so it shows up in both resources for the
// rest of the session.
type Server struct {
	registry Registry
	engine   Engine
	store    *Store
	logger   *slog.Logger
}

// Option represents the options for the Server.
type Option func(*Server)

var (
	_ mcp.PromptServer   = Server{}
	_ mcp.ResourceServer = Server{}
	_ mcp.ToolServer     = Server{}
)

// NewServer creates a Server that reads and writes store. The server is the only writer
// of store for the lifetime of the process.
func NewServer(store *Store, options ...Option) Server {
	registry := NewRegistry()
	s := Server{
		registry: registry,
		engine:   NewEngine(registry),
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "research"))
	}
}

// ListResources implements mcp.ResourceServer interface.
func (s Server) ListResources(context.Context, mcp.ListResourcesParams) (mcp.ListResourcesResult, error) {
	s.logger.Debug("handling list resources request")

	return mcp.ListResourcesResult{
		Resources: s.registry.Resources(),
	}, nil
}

// ReadResource implements mcp.ResourceServer interface.
// research://notes is the notes log, one note per line. research://data is the research
// record as indented JSON.
func (s Server) ReadResource(_ context.Context, params mcp.ReadResourceParams) (mcp.ReadResourceResult, error) {
	s.logger.Debug("handling read resource request", slog.String("uri", params.URI))

	resource, err := s.registry.Resource(params.URI)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}

	var text string
	switch resource.URI {
	case NotesURI:
		text = s.store.NotesText()
	case DataURI:
		text, err = s.store.Snapshot().JSON()
		if err != nil {
			return mcp.ReadResourceResult{}, fmt.Errorf("failed to read %s: %w", resource.URI, err)
		}
	default:
		return mcp.ReadResourceResult{}, UnknownResourceError{URI: params.URI}
	}

	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			{
				URI:      resource.URI,
				MimeType: resource.MimeType,
				Text:     text,
			},
		},
	}, nil
}

// ListPrompts implements mcp.PromptServer interface.
func (s Server) ListPrompts(context.Context, mcp.ListPromptsParams) (mcp.ListPromptResult, error) {
	s.logger.Debug("handling list prompts request")

	return mcp.ListPromptResult{
		Prompts: s.registry.Prompts(),
	}, nil
}

// GetPrompt implements mcp.PromptServer interface.
// The prompt is rendered before anything is recorded, so a rejected request leaves the
// research record and notes as they were.
func (s Server) GetPrompt(_ context.Context, params mcp.GetPromptParams) (mcp.GetPromptResult, error) {
	s.logger.Debug("handling get prompt request",
		slog.String("name", params.Name),
		slog.Any("arguments", params.Arguments))

	text, err := s.engine.Render(params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("failed to render prompt", slog.String("name", params.Name), slog.String("err", err.Error()))
		return mcp.GetPromptResult{}, err
	}

	question := params.Arguments[ArgResearchQuestion]
	s.store.SetQuestion(question)
	s.store.AppendNote(fmt.Sprintf("Research initiated on question: %s", question))

	s.logger.Debug("generated prompt", slog.String("question", question))

	return mcp.GetPromptResult{
		Description: fmt.Sprintf("Deep research template for: %s", question),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.Content{
					Type: mcp.ContentTypeText,
					Text: text,
				},
			},
		},
	}, nil
}

// ListTools implements mcp.ToolServer interface. The list is always empty.
func (s Server) ListTools(context.Context, mcp.ListToolsParams) (mcp.ListToolsResult, error) {
	s.logger.Debug("handling list tools request")

	return mcp.ListToolsResult{
		Tools: s.registry.Tools(),
	}, nil
}

// CallTool implements mcp.ToolServer interface. With no tools registered, every name is unknown.
func (s Server) CallTool(_ context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	return mcp.CallToolResult{}, fmt.Errorf("%w: %s", mcp.ErrToolNotFound, params.Name)
}
