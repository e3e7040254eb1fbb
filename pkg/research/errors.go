package research

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimited marks a run aborted because the search provider kept
	// throttling after all retries.
	ErrRateLimited = errors.New("research: rate limited")
	// ErrInvalidRequest marks a request rejected before any work starts.
	ErrInvalidRequest = errors.New("research: invalid request")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func trimmed(s string) string { return strings.TrimSpace(s) }
