package render

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound reports a source that is neither a directory nor a
	// built-in template name.
	ErrTemplateNotFound = errors.New("render: template not found")
	// ErrTemplate matches every TemplateError.
	ErrTemplate = errors.New("render: template failed")
)

// TemplateError reports unresolved or malformed template source.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("render: %s: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

func (e *TemplateError) Is(target error) bool { return target == ErrTemplate }
