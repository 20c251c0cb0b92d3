package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"math"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-secret")

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"userId":       "user-123",
		"role":         "learner",
		"assignmentId": 42,
		"groupId":      "group-a",
		"exp":          time.Now().Add(time.Hour).Unix(),
	}
}

func mintHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newSecretVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(VerifierOptions{Secret: testSecret})
	require.NoError(t, err)
	return v
}

func TestNewTokenVerifier_RequiresKeyMaterial(t *testing.T) {
	_, err := NewTokenVerifier(VerifierOptions{})
	require.Error(t, err)
}

func TestTokenVerifier_ValidToken(t *testing.T) {
	claims := validClaims()
	claims["gradingCallbackRequired"] = true

	session, err := newSecretVerifier(t).Verify(mintHS256(t, testSecret, claims))
	require.NoError(t, err)

	assert.Equal(t, "user-123", session.UserID)
	assert.Equal(t, RoleLearner, session.Role)
	assert.Equal(t, 42, session.AssignmentID)
	assert.Equal(t, "group-a", session.GroupID)
	require.NotNil(t, session.GradingCallbackRequired)
	assert.True(t, *session.GradingCallbackRequired)
}

func TestTokenVerifier_AssignmentIDInt32Bounds(t *testing.T) {
	for _, id := range []int{math.MaxInt32, math.MinInt32} {
		claims := validClaims()
		claims["assignmentId"] = id

		session, err := newSecretVerifier(t).Verify(mintHS256(t, testSecret, claims))
		require.NoError(t, err)
		assert.Equal(t, id, session.AssignmentID)
	}
}

func TestTokenVerifier_OptionalCallbackFlagAbsent(t *testing.T) {
	session, err := newSecretVerifier(t).Verify(mintHS256(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Nil(t, session.GradingCallbackRequired)
}

func TestTokenVerifier_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "garbage",
			token:   func(t *testing.T) string { return "not.a.jwt" },
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong secret",
			token:   func(t *testing.T) string { return mintHS256(t, []byte("other"), validClaims()) },
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := validClaims()
				c["exp"] = time.Now().Add(-time.Minute).Unix()
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "no expiry",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "exp")
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "alg none",
			token: func(t *testing.T) string {
				signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return signed
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing role",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "role")
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrUnknownRole,
		},
		{
			name: "unrecognized role",
			token: func(t *testing.T) string {
				c := validClaims()
				c["role"] = "admin"
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrUnknownRole,
		},
		{
			name: "missing userId",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "userId")
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
		{
			name: "missing groupId",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "groupId")
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
		{
			name: "missing assignmentId",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "assignmentId")
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
		{
			name: "fractional assignmentId",
			token: func(t *testing.T) string {
				c := validClaims()
				c["assignmentId"] = 4.5
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
		{
			name: "oversized assignmentId",
			token: func(t *testing.T) string {
				c := validClaims()
				c["assignmentId"] = 1e20
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
		{
			name: "negative oversized assignmentId",
			token: func(t *testing.T) string {
				c := validClaims()
				c["assignmentId"] = -1e12
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
		{
			name: "string assignmentId",
			token: func(t *testing.T) string {
				c := validClaims()
				c["assignmentId"] = "42"
				return mintHS256(t, testSecret, c)
			},
			wantErr: ErrInvalidClaims,
		},
	}

	v := newSecretVerifier(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := v.Verify(tt.token(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, session)
		})
	}
}

func TestTokenVerifier_Leeway(t *testing.T) {
	c := validClaims()
	c["exp"] = time.Now().Add(-5 * time.Second).Unix()
	token := mintHS256(t, testSecret, c)

	strict := newSecretVerifier(t)
	_, err := strict.Verify(token)
	require.Error(t, err)

	lenient, err := NewTokenVerifier(VerifierOptions{Secret: testSecret, Leeway: time.Minute})
	require.NoError(t, err)
	_, err = lenient.Verify(token)
	require.NoError(t, err)
}

func TestTokenVerifier_ClockOverride(t *testing.T) {
	c := validClaims()
	c["exp"] = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	token := mintHS256(t, testSecret, c)

	v, err := NewTokenVerifier(VerifierOptions{
		Secret: testSecret,
		Now:    func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newRSAKeySet(t *testing.T, kid string) (*rsa.PrivateKey, *jose.JSONWebKeySet) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	set := &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	return key, set
}

func mintRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestTokenVerifier_JWKS(t *testing.T) {
	key, set := newRSAKeySet(t, "key-1")
	v, err := NewTokenVerifier(VerifierOptions{JWKS: set})
	require.NoError(t, err)

	session, err := v.Verify(mintRS256(t, key, "key-1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-123", session.UserID)

	// A lone key is used when the token names none.
	_, err = v.Verify(mintRS256(t, key, "", validClaims()))
	require.NoError(t, err)

	_, err = v.Verify(mintRS256(t, key, "unknown-kid", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)

	// HMAC tokens are refused when only a JWK set is configured.
	_, err = v.Verify(mintHS256(t, testSecret, validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifier_JWKSPrivateKeyIsReducedToPublic(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	set := &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: key, KeyID: "priv", Algorithm: "RS256"}}}

	v, err := NewTokenVerifier(VerifierOptions{JWKS: set})
	require.NoError(t, err)

	_, err = v.Verify(mintRS256(t, key, "priv", validClaims()))
	require.NoError(t, err)
}

func TestParseJWKS(t *testing.T) {
	_, set := newRSAKeySet(t, "key-1")
	data, err := json.Marshal(set)
	require.NoError(t, err)

	parsed, err := ParseJWKS(data)
	require.NoError(t, err)
	require.Len(t, parsed.Keys, 1)
	assert.Equal(t, "key-1", parsed.Keys[0].KeyID)

	_, err = ParseJWKS([]byte(`{"keys":[]}`))
	require.Error(t, err)

	_, err = ParseJWKS([]byte(`not json`))
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("author")
	require.NoError(t, err)
	assert.Equal(t, RoleAuthor, role)

	for _, bad := range []string{"", "Author", "admin", "LEARNER"} {
		_, err := ParseRole(bad)
		assert.ErrorIs(t, err, ErrUnknownRole, bad)
	}
}
