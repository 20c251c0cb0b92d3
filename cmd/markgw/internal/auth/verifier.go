package auth

import (
	"errors"
	"fmt"
	"math"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

var (
	hmacMethods       = []string{"HS256", "HS384", "HS512"}
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
)

// VerifierOptions configures a TokenVerifier. At least one of Secret or
// JWKS must be set.
type VerifierOptions struct {
	// Secret verifies HMAC-signed tokens.
	Secret []byte

	// JWKS verifies asymmetrically signed tokens, selected by "kid".
	JWKS *jose.JSONWebKeySet

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// TokenVerifier checks a token's signature and expiry and maps its claims
// onto a UserSession. It holds no mutable state and is safe for concurrent use.
type TokenVerifier struct {
	secret []byte
	jwks   *jose.JSONWebKeySet
	parser *jwt.Parser
}

// NewTokenVerifier builds a verifier restricted to the algorithms its key
// material can check. Tokens signed with any other algorithm are rejected.
func NewTokenVerifier(opts VerifierOptions) (*TokenVerifier, error) {
	var methods []string
	if len(opts.Secret) > 0 {
		methods = append(methods, hmacMethods...)
	}
	if opts.JWKS != nil && len(opts.JWKS.Keys) > 0 {
		methods = append(methods, asymmetricMethods...)
	}
	if len(methods) == 0 {
		return nil, errors.New("token verifier requires a secret or a JWK set")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Now))
	}

	return &TokenVerifier{
		secret: opts.Secret,
		jwks:   opts.JWKS,
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// Verify validates the raw token and returns the session it describes.
// Any failure (bad signature, expired, malformed, missing or unknown claims)
// returns an error and no session.
func (v *TokenVerifier) Verify(raw string) (*UserSession, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return decodeClaims(claims)
}

func (v *TokenVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens are not accepted")
		}
		return v.secret, nil
	}

	if v.jwks == nil {
		return nil, errors.New("no JWK set configured")
	}

	kid, _ := token.Header["kid"].(string)
	var candidates []jose.JSONWebKey
	if kid != "" {
		candidates = v.jwks.Key(kid)
	} else if len(v.jwks.Keys) == 1 {
		candidates = v.jwks.Keys
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no key found for kid %q", kid)
	}

	key := candidates[0]
	if !key.IsPublic() {
		key = key.Public()
	}
	return key.Key, nil
}

// sessionClaims is the wire shape of the platform's session token.
type sessionClaims struct {
	UserID                  string `mapstructure:"userId"`
	Role                    string `mapstructure:"role"`
	AssignmentID            *int   `mapstructure:"assignmentId"`
	GroupID                 string `mapstructure:"groupId"`
	GradingCallbackRequired *bool  `mapstructure:"gradingCallbackRequired"`
}

// decodeClaims maps verified claims onto a UserSession, all or nothing.
func decodeClaims(claims map[string]interface{}) (*UserSession, error) {
	if raw, ok := claims["assignmentId"].(float64); ok {
		if raw != math.Trunc(raw) {
			return nil, fmt.Errorf("%w: assignmentId must be an integer", ErrInvalidClaims)
		}
		if raw < math.MinInt32 || raw > math.MaxInt32 {
			return nil, fmt.Errorf("%w: assignmentId out of range", ErrInvalidClaims)
		}
	}

	var sc sessionClaims
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &sc,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("create claims decoder: %w", err)
	}
	if err := decoder.Decode(claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}

	switch {
	case sc.UserID == "":
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidClaims)
	case sc.GroupID == "":
		return nil, fmt.Errorf("%w: missing groupId", ErrInvalidClaims)
	case sc.AssignmentID == nil:
		return nil, fmt.Errorf("%w: missing assignmentId", ErrInvalidClaims)
	}

	role, err := ParseRole(sc.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}

	return &UserSession{
		UserID:                  sc.UserID,
		Role:                    role,
		AssignmentID:            *sc.AssignmentID,
		GroupID:                 sc.GroupID,
		GradingCallbackRequired: sc.GradingCallbackRequired,
	}, nil
}
