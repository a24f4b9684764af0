package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/fentz26/tickos/internal/scheduler"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// OKResponse is the body of a successful mutation.
type OKResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), ErrorResponse{
		Status: scheduler.StatusOf(err).String(),
		Error:  err.Error(),
	})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, OKResponse{Status: scheduler.StatusOK.String()})
}
