package routing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPath is returned for request paths the gateway refuses to route.
var ErrInvalidPath = errors.New("invalid request path")

// CheckPath rejects an escaped request path that is malformed or carries
// "." or ".." segments, encoded or not. Matching and rewriting both work on
// the escaped form, so an encoded slash stays inside its segment and counts
// as one segment in both steps.
func CheckPath(escapedPath string) error {
	for _, seg := range strings.Split(escapedPath, "/") {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		for _, part := range strings.Split(decoded, "/") {
			if part == "." || part == ".." {
				return fmt.Errorf("%w: dot segment in %q", ErrInvalidPath, escapedPath)
			}
		}
	}
	return nil
}
