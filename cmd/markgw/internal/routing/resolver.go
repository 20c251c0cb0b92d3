package routing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPath is returned when there is no path to resolve.
var ErrEmptyPath = errors.New("request path is empty")

// Resolver computes forwarding URLs. It holds only the immutable target
// table, so Resolve is a pure function of its arguments.
type Resolver struct {
	targets Targets
}

// NewResolver creates a Resolver over targets.
func NewResolver(targets Targets) *Resolver {
	return &Resolver{targets: targets}
}

// Resolve returns the fully-qualified downstream URL for a request matched
// to group. escapedPath is the inbound path in its escaped form, the same
// form the group was matched on; rawQuery is appended unchanged when present.
func (r *Resolver) Resolve(group *RouteGroup, escapedPath, rawQuery string) (string, error) {
	if strings.TrimSpace(escapedPath) == "" {
		return "", ErrEmptyPath
	}
	if group == nil {
		return "", fmt.Errorf("%w: no route group", ErrNoRoute)
	}
	dest, ok := r.targets[group.Target]
	if !ok {
		return "", fmt.Errorf("route group %q: no destination for target %q", group.Name, group.Target)
	}

	if !strings.HasPrefix(escapedPath, "/") {
		escapedPath = "/" + escapedPath
	}
	if err := CheckPath(escapedPath); err != nil {
		return "", err
	}

	rewrite := dest.Rewrite
	if rewrite == nil {
		rewrite = Passthrough
	}

	target := dest.BaseURL + rewrite(escapedPath)
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target, nil
}
