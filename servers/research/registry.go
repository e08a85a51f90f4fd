package research

import (
	"slices"

	mcp "github.com/TangGee/deep-research-mcp"
)

// Addresses of the capabilities this server exposes. They are part of the public contract
// with clients and must not change.
const (
	NotesURI = "research://notes"
	DataURI  = "research://data"

	PromptName          = "deep-research"
	ArgResearchQuestion = "research_question"
)

// Registry describes the resources, prompts and tools the server offers. It is immutable:
// every accessor returns a copy, so callers can't alter what later calls see.
type Registry struct {
	resources []mcp.Resource
	prompts   []mcp.Prompt
}

// NewRegistry returns the registry of the deep-research server: the notes and data
// resources, in that order, and the deep-research prompt.
func NewRegistry() Registry {
	return Registry{
		resources: []mcp.Resource{
			{
				URI:         NotesURI,
				Name:        "Research Process Notes",
				Description: "Notes generated during the research process",
				MimeType:    "text/plain",
			},
			{
				URI:         DataURI,
				Name:        "Research Data",
				Description: "Structured data collected during the research process",
				MimeType:    "application/json",
			},
		},
		prompts: []mcp.Prompt{
			{
				Name:        PromptName,
				Description: "A prompt to conduct deep research on a question",
				Arguments: []mcp.PromptArgument{
					{
						Name:        ArgResearchQuestion,
						Description: "The research question to investigate",
						Required:    true,
					},
				},
			},
		},
	}
}

// Resources returns the resource descriptors in registration order.
func (r Registry) Resources() []mcp.Resource {
	return slices.Clone(r.resources)
}

// Prompts returns the prompt descriptors in registration order.
func (r Registry) Prompts() []mcp.Prompt {
	out := make([]mcp.Prompt, len(r.prompts))
	for i, p := range r.prompts {
		out[i] = clonePrompt(p)
	}
	return out
}

// Tools returns the tool descriptors. This deployment exposes none, the caller does
// its own searching and fetching.
func (r Registry) Tools() []mcp.Tool {
	return []mcp.Tool{}
}

// Prompt returns the descriptor of the named prompt.
func (r Registry) Prompt(name string) (mcp.Prompt, error) {
	idx := slices.IndexFunc(r.prompts, func(p mcp.Prompt) bool {
		return p.Name == name
	})
	if idx < 0 {
		return mcp.Prompt{}, UnknownPromptError{Name: name}
	}
	return clonePrompt(r.prompts[idx]), nil
}

// Resource returns the descriptor of the resource at uri.
func (r Registry) Resource(uri string) (mcp.Resource, error) {
	idx := slices.IndexFunc(r.resources, func(res mcp.Resource) bool {
		return res.URI == uri
	})
	if idx < 0 {
		return mcp.Resource{}, UnknownResourceError{URI: uri}
	}
	return r.resources[idx], nil
}

func clonePrompt(p mcp.Prompt) mcp.Prompt {
	p.Arguments = slices.Clone(p.Arguments)
	return p
}
