package twitch

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matched nothing.
var ErrNotFound = errors.New("twitch: not found")

// UpstreamError is a non-2xx response from Helix or the token endpoint.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("twitch: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
