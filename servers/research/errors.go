package research

import (
	"fmt"

	mcp "github.com/TangGee/deep-research-mcp"
)

// UnknownResourceError is returned when a URI doesn't name one of the registered resources.
type UnknownResourceError struct {
	URI string
}

// UnknownPromptError is returned when a prompt name isn't registered.
type UnknownPromptError struct {
	Name string
}

// MissingArgumentError is returned when a required prompt argument is absent. Name is the
// first missing argument in declaration order.
type MissingArgumentError struct {
	Name string
}

// InvalidFieldError is returned by Store.Set for a field outside the research record, or
// for a value whose shape doesn't fit the field.
type InvalidFieldError struct {
	Field  Field
	Reason string
}

func (e UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource: %s", e.URI)
}

// Unwrap lets the protocol layer report the error as resource-not-found.
func (e UnknownResourceError) Unwrap() error {
	return mcp.ErrResourceNotFound
}

func (e UnknownPromptError) Error() string {
	return fmt.Sprintf("unknown prompt: %s", e.Name)
}

// Unwrap lets the protocol layer report the error as invalid params.
func (e UnknownPromptError) Unwrap() error {
	return mcp.ErrPromptNotFound
}

func (e MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required argument: %s", e.Name)
}

// Unwrap lets the protocol layer report the error as invalid params.
func (e MissingArgumentError) Unwrap() error {
	return mcp.ErrInvalidParams
}

func (e InvalidFieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid research data field: %s", e.Field)
	}
	return fmt.Sprintf("invalid research data field %s: %s", e.Field, e.Reason)
}
