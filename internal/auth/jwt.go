package auth

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the result of a successful token verification.
type Identity struct {
	UserID   string
	Username string
}

// Verifier resolves a bearer token to an identity. The collaboration
// server calls it once per connection, at join time.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

var ErrUnauthenticated = errors.New("authentication required")

type Claims struct {
	Username string `json:"username"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

func secret() []byte {
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		s = "dev-secret"
	}
	return []byte(s)
}

// jwtVerifier validates HS256 access tokens issued by the auth service.
type jwtVerifier struct{}

func NewJWTVerifier() Verifier { return jwtVerifier{} }

func (jwtVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != "" && claims.Type != "access" {
		return Identity{}, ErrUnauthenticated
	}
	if claims.Subject == "" {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: claims.Subject, Username: claims.Username}, nil
}

// SignAccessToken issues a short-lived access token. Used by tests and by
// the agent-side tooling; the production issuer lives in the auth service.
func SignAccessToken(userID, username string, ttl time.Duration) (string, time.Time, error) {
	expires := time.Now().Add(ttl)
	claims := &Claims{
		Username: username,
		Type:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}
