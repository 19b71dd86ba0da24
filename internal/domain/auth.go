package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Scopes understood by the proctoring API.
const (
	ScopeDetectionControl = "detection.control" // start/stop detection and attendance
	ScopeStatsRead        = "stats.read"        // live counters, offenders, frames
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true or "stats.read": true
	jwt.RegisteredClaims
}

// Allows reports whether the claims grant the scope (admin grants everything).
func (c *CustomClaims) Allows(scope string) bool {
	if c == nil {
		return false
	}
	return c.Scopes["admin"] || c.Scopes[scope]
}
