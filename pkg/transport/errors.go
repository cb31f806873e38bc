package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidMethod is returned before any request is sent when the method
	// is not one of GET, POST, PUT or DELETE.
	ErrInvalidMethod = errors.New("method invalid")
	// ErrMissingCSRFToken is returned before any request is sent when the
	// anti-forgery cookie is absent from the session.
	ErrMissingCSRFToken = errors.New("could not retrieve csrf")
)

// DefaultErrorDetail is the message used when the server gives no usable detail.
const DefaultErrorDetail = "Server Error"

// APIError is a non-2xx response. Detail is the human-readable message meant
// for display next to the triggering control.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return e.Detail
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type errorBody struct {
	Detail string `json:"detail"`
}

// decodeAPIError builds an APIError from a failed response body. With
// maskServerErrors set, a 500 always reports DefaultErrorDetail.
func decodeAPIError(status int, body []byte, maskServerErrors bool) *APIError {
	apiErr := &APIError{StatusCode: status, Detail: DefaultErrorDetail}
	if maskServerErrors && status == http.StatusInternalServerError {
		return apiErr
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		apiErr.Detail = eb.Detail
	}
	return apiErr
}

// decodeError wraps a JSON decoding failure of a success body.
func decodeError(method, path string, err error) error {
	return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
}
