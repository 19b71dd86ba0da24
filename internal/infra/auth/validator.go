package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/proctor/internal/domain"
)

var (
	ErrNoSubject = errors.New("token has no user_id")
	ErrNoScopes  = errors.New("token grants no proctoring scope")
)

// knownScopes are the grants a proctoring token may carry.
var knownScopes = map[string]bool{
	"admin":                      true,
	domain.ScopeDetectionControl: true,
	domain.ScopeStatsRead:        true,
}

// BaseValidator verifies RS256 tokens issued by the campus identity
// provider. A token must name its proctor and grant at least one scope
// this service understands; unknown grants are stripped.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{
		publicKey: pubKey,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	claims := &domain.CustomClaims{}
	if _, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims.UserID == "" {
		return nil, ErrNoSubject
	}
	for scope := range claims.Scopes {
		if !knownScopes[scope] || !claims.Scopes[scope] {
			delete(claims.Scopes, scope)
		}
	}
	if len(claims.Scopes) == 0 {
		return nil, ErrNoScopes
	}
	return claims, nil
}

// ParseRSAPublicKey decodes a PEM public key.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, errors.New("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
