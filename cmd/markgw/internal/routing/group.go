package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
)

// ErrNoRoute is returned when a path matches no route group.
var ErrNoRoute = errors.New("no route group matches request")

// RouteGroup binds path patterns to a downstream target and an auth method.
//
// A pattern is either an exact path ("/v1/oauth_consumers") or a prefix
// ending in "/*" ("/v1/oauth_consumers/*"), which matches every path under
// that prefix. Filter is an optional go-bexpr expression evaluated against
// the request's "method" and "path"; the group only matches when it holds.
type RouteGroup struct {
	Name     string
	Patterns []string
	Target   Target
	Auth     auth.Method
	Filter   string

	filter *bexpr.Evaluator
}

func (g *RouteGroup) compile() error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("route group name is required")
	}
	if len(g.Patterns) == 0 {
		return fmt.Errorf("route group %q has no patterns", g.Name)
	}
	for _, p := range g.Patterns {
		if err := validatePattern(p); err != nil {
			return fmt.Errorf("route group %q: %w", g.Name, err)
		}
	}
	if _, err := ParseTarget(string(g.Target)); err != nil {
		return fmt.Errorf("route group %q: %w", g.Name, err)
	}
	if _, err := auth.ParseMethod(string(g.Auth)); err != nil {
		return fmt.Errorf("route group %q: %w", g.Name, err)
	}
	if expr := strings.TrimSpace(g.Filter); expr != "" {
		evaluator, err := bexpr.CreateEvaluator(expr)
		if err != nil {
			return fmt.Errorf("route group %q: compile filter: %w", g.Name, err)
		}
		g.filter = evaluator
	}
	return nil
}

func validatePattern(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern %q must start with /", pattern)
	}
	if i := strings.Index(pattern, "*"); i >= 0 && (i != len(pattern)-1 || !strings.HasSuffix(pattern, "/*")) {
		return fmt.Errorf("pattern %q: wildcard is only allowed as a trailing /*", pattern)
	}
	return nil
}

func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return path == pattern
}

// matches reports whether the group accepts the request. A filter that
// fails to evaluate is treated as false.
func (g *RouteGroup) matches(method, path string) bool {
	matched := false
	for _, p := range g.Patterns {
		if matchPattern(p, path) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	if g.filter == nil {
		return true
	}
	ok, err := g.filter.Evaluate(map[string]any{
		"method": method,
		"path":   path,
	})
	return err == nil && ok
}

// Table is the ordered, immutable list of route groups. The first matching
// group wins.
type Table struct {
	groups []RouteGroup
}

// NewTable validates groups and compiles their filters.
func NewTable(groups []RouteGroup) (*Table, error) {
	if len(groups) == 0 {
		return nil, errors.New("route table is empty")
	}
	seen := make(map[string]struct{}, len(groups))
	compiled := make([]RouteGroup, len(groups))
	for i, g := range groups {
		g.Patterns = append([]string(nil), g.Patterns...)
		if err := g.compile(); err != nil {
			return nil, err
		}
		if _, dup := seen[g.Name]; dup {
			return nil, fmt.Errorf("duplicate route group %q", g.Name)
		}
		seen[g.Name] = struct{}{}
		compiled[i] = g
	}
	return &Table{groups: compiled}, nil
}

// DefaultGroups is the built-in route table: LTI credential routes before
// the primary API catch-all.
func DefaultGroups() []RouteGroup {
	return []RouteGroup{
		{
			Name:     "lti-credentials",
			Patterns: []string{"/v1/oauth_consumers", "/v1/oauth_consumers/*"},
			Target:   TargetLTICredentialManager,
			Auth:     auth.MethodBearer,
		},
		{
			Name:     "api",
			Patterns: []string{"/v1/*"},
			Target:   TargetPrimaryAPI,
			Auth:     auth.MethodCookie,
		},
	}
}

// Match returns the first group accepting method and path. path is the
// escaped request path.
func (t *Table) Match(method, path string) (*RouteGroup, error) {
	for i := range t.groups {
		if t.groups[i].matches(method, path) {
			return &t.groups[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNoRoute, method, path)
}

// Groups returns a copy of the table in match order.
func (t *Table) Groups() []RouteGroup {
	return append([]RouteGroup(nil), t.groups...)
}
