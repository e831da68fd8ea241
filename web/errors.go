package web

import "fmt"

// HTTPError is the error type a handler's Prepare returns to
// short-circuit a response with a specific status code (any other
// Prepare error yields a 500) — tinycore's HTTPError exception, minus the file/line/
// func capture a C++ macro-based ASSERT needed and Go's error values
// don't.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("web: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("web: HTTP %d", e.StatusCode)
}

// NewHTTPError builds an HTTPError carrying an optional explanatory
// message distinct from the status line's reason phrase.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message}
}
