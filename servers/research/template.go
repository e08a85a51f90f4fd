package research

import (
	_ "embed"
	"strings"
)

//go:embed prompt.md
var deepResearchTemplate string

// Template is a prompt body with a single placeholder, written as the argument name in
// braces, e.g. "{research_question}". Rendering is literal string replacement: there are
// no loops, conditionals or nested placeholders.
type Template struct {
	Body     string
	Argument string
}

// Engine renders the registered prompts.
type Engine struct {
	registry  Registry
	templates map[string]Template
}

// NewEngine returns an Engine that validates arguments against registry and renders the
// deep-research template.
func NewEngine(registry Registry) Engine {
	return Engine{
		registry: registry,
		templates: map[string]Template{
			PromptName: {
				Body:     deepResearchTemplate,
				Argument: ArgResearchQuestion,
			},
		},
	}
}

// Render checks that name is a registered prompt and that args holds every argument the
// prompt requires, then substitutes the placeholder and trims surrounding whitespace.
// Arguments the prompt doesn't declare are ignored.
func (e Engine) Render(name string, args map[string]string) (string, error) {
	prompt, err := e.registry.Prompt(name)
	if err != nil {
		return "", err
	}

	for _, arg := range prompt.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			return "", MissingArgumentError{Name: arg.Name}
		}
	}

	tmpl, ok := e.templates[name]
	if !ok {
		return "", UnknownPromptError{Name: name}
	}

	return strings.TrimSpace(tmpl.render(args[tmpl.Argument])), nil
}

func (t Template) render(value string) string {
	return strings.Replace(t.Body, "{"+t.Argument+"}", value, 1)
}
