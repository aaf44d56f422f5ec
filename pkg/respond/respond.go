// Package respond writes the JSON envelopes shared by the HTTP surfaces:
// {"status":"success",...} and {"status":"error","code":...,"message":...}.
package respond

import (
	"encoding/json"
	"net/http"
)

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeValidation   = "VALIDATION_ERROR"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type successBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, successBody{Status: "success", Data: data})
}

func SuccessMessage(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, successBody{Status: "success", Message: message, Data: data})
}

func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Status: "error", Code: code, Message: message})
}

func Unauthorized(w http.ResponseWriter, _ error) {
	Error(w, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
}

func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}
