package research

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Field names one of the fixed fields of the research record.
type Field string

// The research record has exactly these fields, in this order.
const (
	FieldQuestion         Field = "question"
	FieldElaboration      Field = "elaboration"
	FieldSubquestions     Field = "subquestions"
	FieldSearchResults    Field = "search_results"
	FieldExtractedContent Field = "extracted_content"
	FieldFinalReport      Field = "final_report"
)

// Data is the research record. The struct field order is the key order of its JSON form.
type Data struct {
	Question         string         `json:"question"`
	Elaboration      string         `json:"elaboration"`
	Subquestions     []string       `json:"subquestions"`
	SearchResults    map[string]any `json:"search_results"`
	ExtractedContent map[string]any `json:"extracted_content"`
	FinalReport      string         `json:"final_report"`
}

// Store holds the research record of the process and the append-only log of notes
// describing how it changed. Every mutation of a field appends its note under the same
// lock, so the pair is never observed half done. Nothing is ever removed from the log.
type Store struct {
	mu     sync.Mutex
	data   Data
	notes  []string
	logger *slog.Logger
}

// NewStore returns a Store with every field empty. A nil logger means slog.Default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		data: Data{
			Subquestions:     []string{},
			SearchResults:    map[string]any{},
			ExtractedContent: map[string]any{},
		},
		notes:  []string{},
		logger: logger.With(slog.String("component", "store")),
	}
}

// AppendNote appends text to the notes log verbatim.
func (s *Store) AppendNote(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendNote(text)
}

// SetQuestion replaces the research question.
func (s *Store) SetQuestion(question string) {
	s.update(FieldQuestion, func(d *Data) { d.Question = question })
}

// SetElaboration replaces the elaboration of the question.
func (s *Store) SetElaboration(elaboration string) {
	s.update(FieldElaboration, func(d *Data) { d.Elaboration = elaboration })
}

// SetSubquestions replaces the subquestions. The slice is copied.
func (s *Store) SetSubquestions(subquestions []string) {
	cp := slices.Clone(subquestions)
	if cp == nil {
		cp = []string{}
	}
	s.update(FieldSubquestions, func(d *Data) { d.Subquestions = cp })
}

// SetSearchResults replaces the search results. The map is deep-copied.
func (s *Store) SetSearchResults(results map[string]any) {
	cp := cloneObject(results)
	s.update(FieldSearchResults, func(d *Data) { d.SearchResults = cp })
}

// SetExtractedContent replaces the extracted content. The map is deep-copied.
func (s *Store) SetExtractedContent(content map[string]any) {
	cp := cloneObject(content)
	s.update(FieldExtractedContent, func(d *Data) { d.ExtractedContent = cp })
}

// SetFinalReport replaces the final report.
func (s *Store) SetFinalReport(report string) {
	s.update(FieldFinalReport, func(d *Data) { d.FinalReport = report })
}

// Set replaces the named field with value, for callers that hold the field name as data.
// It fails with InvalidFieldError, leaving the store untouched, when field isn't part of
// the record or value doesn't fit it. Subquestions accept []string or a []any of strings,
// the two map fields accept map[string]any, the rest accept string.
func (s *Store) Set(field Field, value any) error {
	switch field {
	case FieldQuestion, FieldElaboration, FieldFinalReport:
		str, ok := value.(string)
		if !ok {
			return InvalidFieldError{Field: field, Reason: fmt.Sprintf("want string, got %T", value)}
		}
		switch field {
		case FieldQuestion:
			s.SetQuestion(str)
		case FieldElaboration:
			s.SetElaboration(str)
		default:
			s.SetFinalReport(str)
		}
	case FieldSubquestions:
		subquestions, err := toStrings(value)
		if err != nil {
			return InvalidFieldError{Field: field, Reason: err.Error()}
		}
		s.SetSubquestions(subquestions)
	case FieldSearchResults, FieldExtractedContent:
		obj, ok := value.(map[string]any)
		if !ok {
			return InvalidFieldError{Field: field, Reason: fmt.Sprintf("want object, got %T", value)}
		}
		if field == FieldSearchResults {
			s.SetSearchResults(obj)
		} else {
			s.SetExtractedContent(obj)
		}
	default:
		return InvalidFieldError{Field: field}
	}
	return nil
}

// Snapshot returns a deep copy of the research record.
func (s *Store) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Data{
		Question:         s.data.Question,
		Elaboration:      s.data.Elaboration,
		Subquestions:     slices.Clone(s.data.Subquestions),
		SearchResults:    cloneObject(s.data.SearchResults),
		ExtractedContent: cloneObject(s.data.ExtractedContent),
		FinalReport:      s.data.FinalReport,
	}
}

// Notes returns a copy of the notes log in insertion order.
func (s *Store) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.notes)
}

// NotesText returns the notes joined by newlines, in insertion order.
func (s *Store) NotesText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return strings.Join(s.notes, "\n")
}

// update applies fn to the record and logs the change, atomically.
func (s *Store) update(field Field, fn func(*Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.data)
	s.appendNote(fmt.Sprintf("Updated research data: %s", field))
}

func (s *Store) appendNote(text string) {
	s.notes = append(s.notes, text)
	s.logger.Debug("note added", slog.String("note", text))
}

// JSON renders the record with two-space indentation, keys in declaration order, and
// without escaping HTML characters.
func (d Data) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("failed to encode research data: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func toStrings(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: want string, got %T", i, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want list of strings, got %T", value)
	}
}

// cloneObject deep-copies a JSON-like object. A nil map becomes an empty one.
func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneObject(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(v)
	default:
		return v
	}
}
