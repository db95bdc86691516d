package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The client surfaces exactly three kinds of failures to the layers above:
// not authenticated, remote operation failed, and validation failed. The UI
// only ever displays the message or retries the whole operation, so no
// structured error codes cross this boundary.

var ErrNotAuthenticated = errors.New("not authenticated")

// RemoteError is a failed backend operation. Message carries the
// human-readable text passed through from the transport or the backend.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed [%d]: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// ValidationError is raised before any network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type apiErrorBody struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// remoteError builds a RemoteError from a non-2xx response body, digging the
// human-readable message out of the common backend error shapes.
func remoteError(operation string, statusCode int, body []byte) *RemoteError {
	message := string(body)
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			message = parsed.Message
		case parsed.Msg != "":
			message = parsed.Msg
		case parsed.ErrorDescription != "":
			message = parsed.ErrorDescription
		case parsed.ErrorField != "":
			message = parsed.ErrorField
		}
	}
	return &RemoteError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}
