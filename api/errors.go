package api

import (
	"errors"
	"net/http"

	"github.com/kdgroup/jobledger"
)

type errorBody struct {
	Error string   `json:"error"`
	Unmet   []string `json:"unmet,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case jobledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, jobledger.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, jobledger.ErrRequirementsNotMet),
		errors.Is(err, jobledger.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, jobledger.ErrStatusConflict),
		errors.Is(err, jobledger.ErrConflict),
		errors.Is(err, jobledger.ErrAlreadyExists),
		errors.Is(err, jobledger.ErrInvoicePaid),
		errors.Is(err, jobledger.ErrInvalidInvoiceStatus),
		errors.Is(err, jobledger.ErrInvalidPayoutStatus):
		return http.StatusConflict
	case errors.Is(err, jobledger.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var reqErr *jobledger.RequirementsError
	if errors.As(err, &reqErr) {
		body.Unmet = reqErr.Unmet
	}
	var multi jobledger.MultiError
	if errors.As(err, &multi) && len(multi.Errors) > 1 {
		for _, e := range multi.Errors {
			body.Details = append(body.Details, e.Error())
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
