package domain

import (
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindTaskNotFound  ErrorKind = "TaskNotFound"
	KindInvalid       ErrorKind = "InvalidRequest"
	KindConfig        ErrorKind = "ConfigError"
	KindSerialization ErrorKind = "SerializationError"
	KindOrchestrator  ErrorKind = "OrchestratorError"
)

var (
	ErrTaskNotFound  = &Error{Kind: KindTaskNotFound}
	ErrInvalid       = &Error{Kind: KindInvalid}
	ErrConfig        = &Error{Kind: KindConfig}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrOrchestrator  = &Error{Kind: KindOrchestrator}
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	prefix := e.Kind.title()
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTaskNotFound)
// works for every TaskNotFound value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Message is the short text placed in the error envelope. Orchestrator
// failures pass the upstream message through unchanged.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (k ErrorKind) title() string {
	switch k {
	case KindTaskNotFound:
		return "Task not found"
	case KindInvalid:
		return "Invalid request"
	case KindConfig:
		return "Configuration error"
	case KindSerialization:
		return "Serialization error"
	case KindOrchestrator:
		return "Kubernetes error"
	default:
		return string(k)
	}
}

func TaskNotFound(name string) error {
	return &Error{Kind: KindTaskNotFound, Msg: name}
}

func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

func Configf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

func Serialization(err error) error {
	return &Error{Kind: KindSerialization, Err: err}
}

func Orchestrator(err error) error {
	return &Error{Kind: KindOrchestrator, Err: err}
}
