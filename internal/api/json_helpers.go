package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxRequestBodyBytes = 64 << 10

// apiError is returned by handlers and rendered as an errorResponse.
type apiError struct {
	Status  int
	Message string
	Code    string
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:         "invalid_request",
	http.StatusUnauthorized:       "unauthorized",
	http.StatusForbidden:          "forbidden",
	http.StatusNotFound:           "not_found",
	http.StatusMethodNotAllowed:   "method_not_allowed",
	http.StatusTooManyRequests:    "rate_limited",
	http.StatusServiceUnavailable: "service_unavailable",
}

func (e *apiError) code() string {
	if e.Code != "" {
		return e.Code
	}
	if code, ok := statusCodes[e.Status]; ok {
		return code
	}
	if e.Status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	writeJSON(w, err.Status, errorResponse{Error: err.Message, Code: err.code()})
}

// decodeJSONBody rejects unknown fields and bodies over maxRequestBodyBytes.
func decodeJSONBody(r *http.Request, target any) *apiError {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return &apiError{Status: http.StatusBadRequest, Message: "request body is empty"}
	default:
		return &apiError{Status: http.StatusBadRequest, Message: "invalid json: " + err.Error()}
	}
}
