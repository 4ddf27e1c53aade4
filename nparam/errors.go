package nparam

import (
	"fmt"
	"strings"
)

// InvalidParamSourceError is a configuration error for a source name
// that is not one of path, query, header, cookie, or body.
type InvalidParamSourceError struct {
	Source string
}

func (e *InvalidParamSourceError) Error() string {
	return fmt.Sprintf("invalid param source %q, expected one of %s", e.Source, strings.Join(sourceNames, ", "))
}

// InvalidParamError is a configuration error for a parameter whose
// type or markers cannot be turned into an extractor.
type InvalidParamError struct {
	Name   string
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("invalid param %s: %s", e.Name, e.Reason)
}

// InvalidParamPackError is a configuration error for a struct that
// cannot be fanned out into individual parameters.
type InvalidParamPackError struct {
	InvalidParamError
}

// PackError builds an InvalidParamPackError
func PackError(name, format string, args ...interface{}) *InvalidParamPackError {
	return &InvalidParamPackError{InvalidParamError{Name: name, Reason: fmt.Sprintf(format, args...)}}
}

func (e *InvalidParamPackError) Error() string {
	return fmt.Sprintf("invalid param pack %s: %s", e.Name, e.Reason)
}

// NotSupportedError is a configuration error for a declaration that
// is well formed but not supported: a path parameter with a default,
// two body parameters, and the like.
type NotSupportedError struct {
	Message string
}

// NotSupported builds a NotSupportedError
func NotSupported(format string, args ...interface{}) *NotSupportedError {
	return &NotSupportedError{Message: fmt.Sprintf(format, args...)}
}

func (e *NotSupportedError) Error() string { return "not supported: " + e.Message }
