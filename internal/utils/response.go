package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/logger"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// WriteJSON encodes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a classified error to its HTTP status. Internal errors are
// logged and their detail is not sent to the client.
func WriteError(w http.ResponseWriter, log *logger.Logger, message string, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	resp := ErrorResponse(message, err.Error())
	resp.Code = string(code)
	resp.Reason = string(apperr.ReasonOf(err))
	if code == apperr.CodeInternal {
		log.Error("API", fmt.Sprintf("%s: %v", message, err))
		resp.Error = "internal error"
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes the request body into dst as a BAD_REQUEST on failure.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeBadRequest, apperr.ReasonInvalidLine, "invalid request body", err)
	}
	return nil
}
