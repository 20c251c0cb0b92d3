package routing

import (
	"fmt"
	"net/url"
	"strings"
)

// Target identifies a downstream service. The set is closed.
type Target string

const (
	// TargetPrimaryAPI is the primary application API. Paths are forwarded verbatim.
	TargetPrimaryAPI Target = "primary_api"
	// TargetLTICredentialManager is mounted at its root, so the gateway's
	// version and resource segments are stripped.
	TargetLTICredentialManager Target = "lti_credential_manager"
)

// ParseTarget validates a configured target name.
func ParseTarget(value string) (Target, error) {
	switch Target(value) {
	case TargetPrimaryAPI, TargetLTICredentialManager:
		return Target(value), nil
	default:
		return "", fmt.Errorf("unknown downstream target %q", value)
	}
}

// RewriteFunc maps an inbound escaped path onto the downstream path.
type RewriteFunc func(escapedPath string) string

// Passthrough returns the path unchanged.
func Passthrough(escapedPath string) string {
	return escapedPath
}

// StripSegments returns a RewriteFunc that removes the first n path segments.
// Removing every segment yields "/". A trailing slash after the kept
// segments is preserved.
func StripSegments(n int) RewriteFunc {
	return func(escapedPath string) string {
		parts := strings.SplitN(strings.TrimPrefix(escapedPath, "/"), "/", n+1)
		if len(parts) <= n {
			return "/"
		}
		return "/" + parts[n]
	}
}

// Destination is how a Target is reached.
type Destination struct {
	// BaseURL has no trailing slash.
	BaseURL string
	Rewrite RewriteFunc
}

// Targets is the lookup table from Target to Destination. It is built once
// at startup and only read afterwards.
type Targets map[Target]Destination

// NewTargets builds the table for the two downstream services.
func NewTargets(primaryAPI, ltiCredentialManager string) (Targets, error) {
	primary, err := normalizeBaseURL(primaryAPI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TargetPrimaryAPI, err)
	}
	lti, err := normalizeBaseURL(ltiCredentialManager)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TargetLTICredentialManager, err)
	}
	return Targets{
		TargetPrimaryAPI:           {BaseURL: primary, Rewrite: Passthrough},
		TargetLTICredentialManager: {BaseURL: lti, Rewrite: StripSegments(2)},
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("base URL %q must not carry a query or fragment", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
