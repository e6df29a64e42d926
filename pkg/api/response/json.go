// Package response provides the JSON response envelope shared by the
// saga and repair HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent at this point
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		}
	}
}

// Error writes an error response with the given status code and error details.
func Error(w http.ResponseWriter, statusCode int, code, message string, requestID string) {
	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
	JSON(w, statusCode, errResp)
}

// ErrorWithDetails writes an error response with additional details.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}, requestID string) {
	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	}
	JSON(w, statusCode, errResp)
}
