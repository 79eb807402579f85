// Package data loads the document payload that feeds template rendering.
//
// A data document is a JSON or YAML object with a single required member,
// payload, which must itself be an object:
//
//	{"payload": {"title": "Quarterly report", "total": "1.234,56"}}
package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a data document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrInvalid matches every ValidationError.
var ErrInvalid = errors.New("data: invalid document")

// ValidationError reports malformed input data.
type ValidationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "data: "
	if e.Path != "" {
		msg += e.Path + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// FormatFromPath picks the format from the file extension. Anything other
// than .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a data document from disk and returns its payload.
func Load(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("data: read %s: %w", path, err)
	}
	payload, err := LoadBytes(content, FormatFromPath(path))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && verr.Path == "" {
			verr.Path = path
		}
		return nil, err
	}
	return payload, nil
}

// Parse reads a JSON data document from r.
func Parse(r io.Reader) (map[string]any, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("data: read document: %w", err)
	}
	return LoadBytes(content, FormatJSON)
}

// LoadBytes decodes content in the given format and validates its shape.
func LoadBytes(content []byte, format Format) (map[string]any, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &ValidationError{Reason: "document is empty"}
	}
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, &ValidationError{Reason: "invalid YAML", Err: err}
		}
		raw = normalize(raw)
	case FormatJSON, "":
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, &ValidationError{Reason: "invalid JSON", Err: err}
		}
	default:
		return nil, fmt.Errorf("data: unsupported format %q", format)
	}
	return validate(raw)
}

func validate(raw any) (map[string]any, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Reason: "document must be an object"}
	}
	value, ok := doc["payload"]
	if !ok {
		return nil, &ValidationError{Reason: "missing required field payload"}
	}
	payload, ok := value.(map[string]any)
	if !ok {
		return nil, &ValidationError{Reason: "payload must be an object"}
	}
	return payload, nil
}

// normalize rewrites YAML maps with non-string keys so templates can index
// every object the same way.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = normalize(item)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range v {
			v[i] = normalize(item)
		}
		return v
	default:
		return value
	}
}
