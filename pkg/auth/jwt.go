package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleVisitor   = "visitor"
	RoleExhibitor = "exhibitor"
	RolePartner   = "partner"
	RoleAdmin     = "admin"
)

const audience = "expo-portal"

// Claims are issued by the portal's auth service; this package only signs them for tests and dev tooling.
type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	Tier string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// Classification is the quota key: the visitor tier for visitors, the role for everyone else.
func (c *Claims) Classification() string {
	if strings.EqualFold(c.Role, RoleVisitor) {
		if c.Tier == "" {
			return "free"
		}
		return strings.ToLower(c.Tier)
	}
	return strings.ToLower(c.Role)
}

// SessionID identifies the client session; falls back to the subject when no jti was issued.
func (c *Claims) SessionID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Sub
}

func NewAccessToken(sub, role, tier, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:  sub,
		Role: role,
		Tier: tier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(audience))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
