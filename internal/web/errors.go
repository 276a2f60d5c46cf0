package web

// errors.go maps pipeline errors onto HTTP responses. Technical detail is
// logged server-side with the request id; clients get the typed message and
// a stable machine-readable code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dazzlm/excel-generation/internal/core"
	"github.com/Dazzlm/excel-generation/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// Details carries the per-header suggestions of a mapping failure.
	Details map[string][]string `json:"details,omitempty"`
}

// respondError classifies err, logs it, and writes the JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	logger := logging.FromContext(r.Context())
	logger.Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var me *core.ColumnMappingError
	if errors.As(err, &me) && len(me.Suggestions) > 0 {
		resp.Details = me.Suggestions
	}

	writeJSON(w, status, resp)
}

// classify maps an error to its HTTP status and stable code.
func classify(err error) (int, string) {
	var (
		notFound *core.TableNotFoundError
		mapping  *core.ColumnMappingError
		format   *core.FileFormatError
		invalid  *core.InvalidFieldError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "table_not_found"
	case errors.As(err, &mapping):
		return http.StatusBadRequest, "column_mapping_failed"
	case errors.As(err, &format):
		return http.StatusBadRequest, "invalid_file_format"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_fields"
	case errors.Is(err, core.ErrNoPrimaryKey):
		return http.StatusBadRequest, "no_primary_key"
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusTooManyRequests, "too_many_jobs"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeJSON encodes v with the given status. Encoding errors are logged only,
// since the header is already out.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
