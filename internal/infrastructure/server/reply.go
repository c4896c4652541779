package server

import (
	"encoding/json"
	"net/http"
)

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// WriteText writes a plain text body.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// WriteError writes an error payload shaped as {statusCode, error, message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"statusCode": status,
		"error":      http.StatusText(status),
		"message":    message,
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
