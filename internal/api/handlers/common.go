package handlers

import (
	"encoding/json"
	"net/http"

	"otcbot/internal/apperr"
	"otcbot/pkg/utils"
)

// ErrorResponse is the standard error body for every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse is the standard success body for endpoints that don't
// need a more specific shape.
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.L().Error("api: encode response", utils.Err(err))
	}
}

// writeError maps the apperr taxonomy onto HTTP status codes. A plain
// (non-apperr) error is treated as an internal failure and logged, since
// it means some layer returned something the API boundary doesn't know
// how to classify.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindBusy:
		status = http.StatusTooManyRequests
	case apperr.KindTransient, apperr.KindCritical:
		status = http.StatusServiceUnavailable
	case apperr.KindFatal:
		status = http.StatusInternalServerError
	default:
		utils.L().Error("api: unclassified error reached handler boundary", utils.Err(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(kind)})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "malformed request body")
	}
	return nil
}
