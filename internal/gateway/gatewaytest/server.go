// Package gatewaytest provides httptest handlers that mimic the model
// gateway's chat completions endpoint.
package gatewaytest

import (
	"encoding/json"
	"net/http"
)

// Message mirrors the chat message wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the decoded body of a completion request.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// WriteCompletion writes a well-formed completion response carrying content.
func WriteCompletion(w http.ResponseWriter, content string) {
	response := map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"message": map[string]interface{}{"content": content},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Handler returns a handler that answers every request with content.
func Handler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteCompletion(w, content)
	}
}

// ModelHandler returns a handler that dispatches on the decoded request.
// The callback returns the completion content; ok=false fails the call
// with a 500 so callers can exercise degradation paths.
func ModelHandler(respond func(req Request) (string, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		content, ok := respond(req)
		if !ok {
			http.Error(w, "model unavailable", http.StatusInternalServerError)
			return
		}
		WriteCompletion(w, content)
	}
}

// ErrorHandler returns a handler that always fails with the given status.
func ErrorHandler(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}
