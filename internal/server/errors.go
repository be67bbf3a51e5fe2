package server

import (
	"encoding/json"
	"errors"
	"net/http"

	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

var errorMapper = []struct {
	from   error
	status int
}{
	{usecase.ErrAuthenticationRequired, http.StatusUnauthorized},
	{usecase.ErrPermissionDenied, http.StatusForbidden},
	{usecase.ErrBusinessLogicViolation, http.StatusBadRequest},
	{usecase.ErrNotFound, http.StatusNotFound},
}

// statusOf maps a usecase error to its HTTP status.
func statusOf(err error) int {
	for _, mapping := range errorMapper {
		if errors.Is(err, mapping.from) {
			return mapping.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the error response. Internal failures are logged and
// their details are not exposed to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status != http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}

	s.logger.
		WithError(err).
		WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).
		Error("request failed")
	writeError(w, status, "internal error")
}
