package api

import (
	"encoding/json"
	"net/http"
)

// SuccessResponse is the envelope for every 2xx body.
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, status int, message string, data, meta any) {
	WriteJSON(w, status, SuccessResponse{Status: StatusSuccess, Message: message, Data: data, Meta: meta})
}
