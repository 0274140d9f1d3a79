package middleware

import (
	"net/http"

	"github.com/airglance/airglance/internal/api/models"
)

// writeProblem answers r with a problem of the given kind. Middleware cannot use
// the response package, which depends on this one for request IDs.
func writeProblem(w http.ResponseWriter, r *http.Request, kind models.ProblemKind, detail string) {
	p := models.NewProblem(kind, GetRequestID(r.Context()), detail)
	p.Instance = r.URL.Path
	p.Write(w)
}
