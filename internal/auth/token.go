// Package auth inspects agent tokens and caches permission checks. Tokens are
// verified by the backend; the client only reads their claims.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrTokenEmpty   = errors.New("auth: token is empty")
	ErrTokenExpired = errors.New("auth: token expired")
)

type Claims struct {
	AgentID   string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its exp claim at now.
// A token without exp never expires.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect decodes the claims of an agent token without checking its
// signature. It returns the claims together with ErrTokenExpired when the
// token is past its expiry.
func Inspect(token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Claims{}, ErrTokenEmpty
	}

	parser := &jwt.Parser{}
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("auth: claims of unexpected type")
	}

	claims := Claims{
		AgentID: claimString(mc, "id"),
		Email:   claimString(mc, "email"),
	}
	if claims.AgentID == "" {
		claims.AgentID = claimString(mc, "sub")
	}
	if exp, ok := mc["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	if claims.Expired(now) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func claimString(mc jwt.MapClaims, key string) string {
	switch v := mc[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
