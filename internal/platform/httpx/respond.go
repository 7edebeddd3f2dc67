// Package httpx provides JSON response utilities and the error envelope
// shared by every API handler.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the wire shape of every failure response. Context carries
// additional machine-readable fields (required permissions, user role)
// flattened into the JSON object.
type ErrorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Context map[string]any `json:"-"`
}

// MarshalJSON flattens Context into the top-level object next to the fixed
// error/message/code fields.
func (b ErrorBody) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3+len(b.Context))
	out["error"] = b.Error
	out["message"] = b.Message
	out["code"] = b.Code
	for k, v := range b.Context {
		if k == "error" || k == "message" || k == "code" {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error sends a structured error envelope.
func Error(w http.ResponseWriter, status int, errTitle, message, code string) {
	JSON(w, status, ErrorBody{Error: errTitle, Message: message, Code: code})
}

// ErrorWithContext sends a structured error envelope with extra fields.
func ErrorWithContext(w http.ResponseWriter, status int, errTitle, message, code string, ctx map[string]any) {
	JSON(w, status, ErrorBody{Error: errTitle, Message: message, Code: code, Context: ctx})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
