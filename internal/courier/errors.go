package courier

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// APIError is a non-2xx answer from the courier API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("courier api error %d: %s", e.StatusCode, e.Message)
}

var rateLimitPattern = regexp.MustCompile(`(?i)\brate\b|rate[ _-]?limit|\b429\b|too many requests`)

// IsRateLimited reports whether err means the provider is throttling us.
// The HTTP status decides when one is known; otherwise the error text is
// matched against common throttling phrases.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}
