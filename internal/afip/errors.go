package afip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTimeout marks a TransportError caused by the per-call deadline.
var ErrTimeout = errors.New("timeout")

// ValidationError is returned before any network call when the caller omitted
// required invoicing fields. Fields maps the offending field to the failed rule.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "afip: solicitud invalida: " + strings.Join(names, ", ")
}

// TransportError wraps a connectivity failure reaching the provider.
// It is the only error kind the login flow retries.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("afip: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call exceeded its deadline.
func (e *TransportError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// ProviderFault is a structured rejection from the provider: a SOAP fault or an
// explicit error list. Message is kept verbatim for the caller.
type ProviderFault struct {
	Op      string
	Code    string
	Message string
	Body    string
}

func (e *ProviderFault) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("afip: %s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("afip: %s: %s", e.Op, e.Message)
}

// ParseError means the response did not match the expected schema.
type ParseError struct {
	Op     string
	Detail string
	Body   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("afip: %s: respuesta invalida: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("afip: %s: respuesta invalida: %s", e.Op, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
