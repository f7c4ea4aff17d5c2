package models

// Status values used in API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// APIResponse is the envelope for JSON endpoint responses.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Ok builds a success response with an optional message.
func Ok(message string) APIResponse {
	return APIResponse{Status: StatusOK, Message: message}
}

// Error builds an error response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
