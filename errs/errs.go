// Package errs provides structured error types and helpers for spawnpool.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category surfaced to callers.
type Code string

const (
	// CodeInvalidArgument indicates a nil or otherwise unusable template or instance.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeInvalidState indicates the operation is not allowed in the current lifecycle phase.
	CodeInvalidState Code = "invalid_state"
	// CodeNotFound indicates a missing pool or resource.
	CodeNotFound Code = "not_found"
	// CodeEngine indicates the spawner collaborator failed to create an object.
	CodeEngine Code = "engine_error"
	// CodeConfig indicates invalid configuration input.
	CodeConfig Code = "config"
)

// E captures structured error information produced across the engine.
type E struct {
	Component string
	Code      Code
	Message   string
	Fields    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Message:   "",
		Fields:    nil,
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithMessagef attaches a formatted message to the error.
func WithMessagef(format string, args ...any) Option {
	return WithMessage(fmt.Sprintf(format, args...))
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single key/value pair of context.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err carries an *E with the provided code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var e *E
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// InvalidArgument returns a standardized error for unusable inputs.
func InvalidArgument(component, msg string) *E {
	return New(component, CodeInvalidArgument, WithMessage(msg))
}

// InvalidState returns a standardized error for lifecycle violations.
func InvalidState(component, msg string) *E {
	return New(component, CodeInvalidState, WithMessage(msg))
}
