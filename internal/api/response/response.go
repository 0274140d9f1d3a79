// Package response writes JSON and problem responses for the API handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/airglance/airglance/internal/api/middleware"
	"github.com/airglance/airglance/internal/api/models"
)

// JSON writes data as JSON with the given status and the request ID header.
// data is encoded before anything is written, so an encoding failure becomes a
// 500 problem rather than a truncated body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	var body []byte
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			Problem(w, r, models.KindInternal, "response could not be encoded")
			return
		}
		body = append(body, '\n')
	}

	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Problem writes a problem of the given kind for r, stamped with the request
// path and ID.
func Problem(w http.ResponseWriter, r *http.Request, kind models.ProblemKind, detail string, fieldErrs ...models.FieldError) {
	p := models.NewProblem(kind, middleware.GetRequestID(r.Context()), detail)
	p.Instance = r.URL.Path
	if len(fieldErrs) > 0 {
		p.WithErrors(fieldErrs)
	}
	p.Write(w)
}

// BadRequest writes a 400 validation problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, fieldErrs []models.FieldError) {
	Problem(w, r, models.KindValidation, detail, fieldErrs...)
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindNotFound, detail)
}

// BadGateway writes a retryable 502 problem for provider failures.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUpstream, detail)
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindInternal, detail)
}
