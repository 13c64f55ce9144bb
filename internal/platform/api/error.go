package api

import (
	"net/http"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, message, requestID string) {
	WriteJSON(w, status, ErrorResponse{Status: StatusFailure, Message: message, RequestID: requestID})
}

// Convenience helpers
func BadRequest(w http.ResponseWriter, message, requestID string) {
	WriteError(w, http.StatusBadRequest, message, requestID)
}

func NotFound(w http.ResponseWriter, message, requestID string) {
	WriteError(w, http.StatusNotFound, message, requestID)
}

func ServiceUnavailable(w http.ResponseWriter, message, requestID string) {
	WriteError(w, http.StatusServiceUnavailable, message, requestID)
}

func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", requestID)
}
