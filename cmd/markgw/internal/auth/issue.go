package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken signs s as an HS256 session token expiring after ttl. It is
// used by local tooling to mint tokens that TokenVerifier accepts.
func IssueToken(secret []byte, s UserSession, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("issue token: secret is required")
	}
	if ttl <= 0 {
		return "", errors.New("issue token: ttl must be positive")
	}
	if s.UserID == "" || s.GroupID == "" {
		return "", errors.New("issue token: userId and groupId are required")
	}
	if _, err := ParseRole(string(s.Role)); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	claims := jwt.MapClaims{
		"userId":       s.UserID,
		"role":         string(s.Role),
		"assignmentId": s.AssignmentID,
		"groupId":      s.GroupID,
		"iat":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
	}
	if s.GradingCallbackRequired != nil {
		claims["gradingCallbackRequired"] = *s.GradingCallbackRequired
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}
