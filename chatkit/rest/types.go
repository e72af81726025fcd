package rest

import "fmt"

// APIError is an error response from the backend. It carries the HTTP
// status so callers can normalize it through the session's fixed
// message table (it implements chatkit.StatusError).
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error (status %d)", e.Status)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.Status
}

// errorBody is the FastAPI-style error payload.
type errorBody struct {
	Detail string `json:"detail"`
}
