package models

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID echoes X-Request-Id so users can quote it in reports.
	TraceID string `json:"traceId"`

	// Retryable tells the dashboard to offer a retry; the same request may
	// succeed later without changes.
	Retryable bool `json:"retryable"`

	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemKind identifies a class of API error. It is the last segment of the
// problem type URI.
type ProblemKind string

// Problem kinds served by the API.
const (
	KindValidation  ProblemKind = "validation-error"
	KindNotFound    ProblemKind = "not-found"
	KindMethod      ProblemKind = "method-not-allowed"
	KindRateLimited ProblemKind = "rate-limited"
	KindUpstream    ProblemKind = "upstream-failure"
	KindUnavailable ProblemKind = "service-unavailable"
	KindTLSRequired ProblemKind = "tls-required"
	KindInternal    ProblemKind = "internal-error"
)

// ProblemTypeBase prefixes every problem type URI.
const ProblemTypeBase = "https://airglance.dev/problems/"

type problemKind struct {
	title     string
	status    int
	retryable bool
}

var problemKinds = map[ProblemKind]problemKind{
	KindValidation:  {"Validation error", http.StatusBadRequest, false},
	KindNotFound:    {"Not found", http.StatusNotFound, false},
	KindMethod:      {"Method not allowed", http.StatusMethodNotAllowed, false},
	KindRateLimited: {"Too many requests", http.StatusTooManyRequests, true},
	KindUpstream:    {"Upstream provider error", http.StatusBadGateway, true},
	KindUnavailable: {"Service unavailable", http.StatusServiceUnavailable, true},
	KindTLSRequired: {"HTTPS required", http.StatusForbidden, false},
	KindInternal:    {"Internal server error", http.StatusInternalServerError, false},
}

// TypeURI returns the problem type URI for the kind.
func (k ProblemKind) TypeURI() string {
	return ProblemTypeBase + string(k)
}

// NewProblem creates a problem of the given kind. Unknown kinds are reported as
// internal errors.
func NewProblem(kind ProblemKind, traceID, detail string) *Problem {
	info, ok := problemKinds[kind]
	if !ok {
		kind, info = KindInternal, problemKinds[KindInternal]
	}
	return &Problem{
		Type:      kind.TypeURI(),
		Title:     info.title,
		Status:    info.status,
		Detail:    detail,
		TraceID:   traceID,
		Retryable: info.retryable,
	}
}

// Kind returns the kind encoded in the problem type URI.
func (p *Problem) Kind() ProblemKind {
	return ProblemKind(strings.TrimPrefix(p.Type, ProblemTypeBase))
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
