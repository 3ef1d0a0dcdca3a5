package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/xhad/neardup/pkg/scraper"
)

// ClassifyError maps a fetch or processing failure onto the short reason
// recorded in results.
func ClassifyError(err error) string {
	var httpErr *scraper.HTTPError
	var netErr net.Error
	var opErr *net.OpError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, scraper.ErrInvalidURL):
		return "Invalid URL format"
	case errors.Is(err, errNoContent):
		return "No content extracted"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("HTTP error: %d %s", httpErr.StatusCode, http.StatusText(httpErr.StatusCode))
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return "Timeout error"
	case errors.As(err, &opErr),
		strings.Contains(strings.ToLower(err.Error()), "connection"):
		return "Connection error"
	}
	return fmt.Sprintf("Unexpected error: %s", err)
}

// isTransient reports whether a fetch failure is worth retrying.
func isTransient(err error) bool {
	var httpErr *scraper.HTTPError
	switch {
	case errors.Is(err, scraper.ErrInvalidURL),
		errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &httpErr):
		return httpErr.Temporary()
	}
	return true
}
