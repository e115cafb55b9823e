package models

// APIStatus is the machine-readable status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates success.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates failure.
	APIStatusError APIStatus = "error"
)

// APIResponse is the envelope for every JSON API response.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
