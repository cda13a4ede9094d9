package apiclient

import (
	"errors"
	"fmt"
)

// ApiError is returned when the backend answered with a non-200 business code.
type ApiError struct {
	Code    int
	Message string
	Err     string
}

func (e *ApiError) Error() string {
	if e.Err != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// NetworkError covers transport and HTTP-layer failures, and any failure that
// is not recognizably a business error.
type NetworkError struct {
	Status     int
	StatusText string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("network error: %d %s: %v", e.Status, e.StatusText, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("network error: %d %s", e.Status, e.StatusText)
	case e.Err != nil:
		return fmt.Sprintf("network error: %v", e.Err)
	default:
		return "network error"
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// normalize maps any failure onto one of the two typed errors.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}
	return &NetworkError{Err: err}
}

// IsAPIError reports whether err carries the given business code.
func IsAPIError(err error, code int) bool {
	var apiErr *ApiError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
