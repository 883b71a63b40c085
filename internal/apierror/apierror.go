// Package apierror holds the error envelopes returned to HTTP clients. AFIP
// failures carry their kind and provider code so callers can tell a rejected
// request from an unreachable service.
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// ValidationError lists the offending fields.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Error de validacion", Fields: fields}
}

// UpstreamError reports an AFIP failure. Tipo is one of afip, timeout,
// transporte or respuesta.
type UpstreamError struct {
	Detail string `json:"detail"`
	Tipo   string `json:"tipo"`
	Codigo string `json:"codigo,omitempty"`
}

func NewUpstream(tipo, detail, codigo string) *UpstreamError {
	return &UpstreamError{Detail: detail, Tipo: tipo, Codigo: codigo}
}
