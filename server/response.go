package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/approval"
	"github.com/rs/zerolog/log"
)

// APIError is the body of every non-2xx response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternalError  = "internal_error"
)

// WriteJSON writes data as json with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn().Err(err).Msg("Failed encoding response")
		}
	}
}

// WriteError writes an APIError response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, &APIError{
		Code:    code,
		Message: message,
	})
}

// writeServiceError maps orchestrator errors onto http status codes
func writeServiceError(w http.ResponseWriter, err error) {
	var definitionError *api.DefinitionError
	switch {
	case errors.As(err, &definitionError):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, api.ErrPipelineNotFound),
		errors.Is(err, api.ErrJobNotFound),
		errors.Is(err, approval.ErrApprovalNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, api.ErrInvalidTransition):
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
