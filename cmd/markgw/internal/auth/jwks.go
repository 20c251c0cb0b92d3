package auth

import (
	"encoding/json"
	"fmt"
	"os"

	jose "github.com/go-jose/go-jose/v4"
)

// LoadJWKS reads a JSON Web Key Set from disk. Keys may be public or
// private; private keys are reduced to their public half at verification.
func LoadJWKS(path string) (*jose.JSONWebKeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JWK set: %w", err)
	}
	return ParseJWKS(data)
}

// ParseJWKS decodes a JSON Web Key Set and rejects sets with invalid keys.
func ParseJWKS(data []byte) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode JWK set: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, fmt.Errorf("JWK set contains no keys")
	}
	for i, key := range set.Keys {
		if !key.Valid() {
			return nil, fmt.Errorf("JWK set key %d (kid %q) is invalid", i, key.KeyID)
		}
	}
	return &set, nil
}
