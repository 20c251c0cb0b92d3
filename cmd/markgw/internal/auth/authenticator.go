package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated is the dispatcher's rejection signal. Every failed
	// authentication wraps it, so callers only need errors.Is.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken is returned when a token fails signature, expiry or format checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidClaims is returned when a verified token lacks required claims.
	ErrInvalidClaims = errors.New("invalid token claims")

	// ErrUnknownRole is returned when the role claim is outside the closed set.
	ErrUnknownRole = errors.New("unrecognized role")
)

// Method names how a route group expects credentials to be presented.
type Method string

const (
	// MethodCookie reads the signed token from the configured cookie.
	MethodCookie Method = "cookie"
	// MethodBearer reads the signed token from "Authorization: Bearer".
	MethodBearer Method = "bearer"
	// MethodNone skips authentication entirely.
	MethodNone Method = "none"
)

// ParseMethod validates a configured auth method name.
func ParseMethod(value string) (Method, error) {
	switch Method(value) {
	case MethodCookie, MethodBearer, MethodNone:
		return Method(value), nil
	default:
		return "", fmt.Errorf("unknown auth method %q", value)
	}
}

// Authenticator validates credentials and returns a UserSession.
//
// Return values:
//   - (session, nil): Authentication successful
//   - (nil, nil): Credentials not present
//   - (nil, error): Authentication failed (invalid credentials)
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) (*UserSession, error)
}

// AuthRequest wraps the parts of an HTTP request authenticators may read.
type AuthRequest struct {
	// Headers contains HTTP headers (including Authorization)
	Headers http.Header

	// Cookies contains parsed cookies
	Cookies []*http.Cookie
}

// NewAuthRequest builds an AuthRequest from an inbound HTTP request.
func NewAuthRequest(r *http.Request) AuthRequest {
	return AuthRequest{
		Headers: r.Header,
		Cookies: r.Cookies(),
	}
}
