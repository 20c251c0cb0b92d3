package auth

import (
	"context"
	"strings"
)

// CookieAuthenticator authenticates requests carrying a signed token in a
// named cookie. It is stateless and thread-safe.
type CookieAuthenticator struct {
	cookieName string
	verifier   *TokenVerifier
}

// NewCookieAuthenticator creates a cookie authenticator reading cookieName.
func NewCookieAuthenticator(cookieName string, verifier *TokenVerifier) *CookieAuthenticator {
	return &CookieAuthenticator{cookieName: cookieName, verifier: verifier}
}

// Authenticate extracts and verifies the session cookie.
//
// Returns:
//   - (nil, nil) if the cookie is absent or empty
//   - (nil, error) if the token fails verification
//   - (*UserSession, nil) if authentication succeeds
func (a *CookieAuthenticator) Authenticate(_ context.Context, req AuthRequest) (*UserSession, error) {
	var token string
	for _, cookie := range req.Cookies {
		if cookie.Name == a.cookieName {
			token = strings.TrimSpace(cookie.Value)
			break
		}
	}
	if token == "" {
		return nil, nil
	}
	return a.verifier.Verify(token)
}

// BearerAuthenticator authenticates requests carrying a signed token in the
// "Authorization: Bearer" header. It is stateless and thread-safe.
type BearerAuthenticator struct {
	verifier *TokenVerifier
}

// NewBearerAuthenticator creates a bearer-token authenticator.
func NewBearerAuthenticator(verifier *TokenVerifier) *BearerAuthenticator {
	return &BearerAuthenticator{verifier: verifier}
}

// Authenticate extracts and verifies the bearer token.
//
// Returns:
//   - (nil, nil) if no Authorization header or a non-Bearer scheme is present
//   - (nil, error) if the token fails verification
//   - (*UserSession, nil) if authentication succeeds
func (a *BearerAuthenticator) Authenticate(_ context.Context, req AuthRequest) (*UserSession, error) {
	token, ok := bearerToken(req.Headers.Get("Authorization"))
	if !ok {
		return nil, nil
	}
	return a.verifier.Verify(token)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// MockAuthenticator unconditionally returns the development session.
// It reads nothing from the request; only the Dispatcher's gate decides
// whether it runs.
type MockAuthenticator struct{}

// Authenticate returns DevelopmentSession.
func (MockAuthenticator) Authenticate(context.Context, AuthRequest) (*UserSession, error) {
	return DevelopmentSession(), nil
}
