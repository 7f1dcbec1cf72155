package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for push channel authentication.
var (
	ErrMissingToken  = errors.New("api: missing token")
	ErrInvalidToken  = errors.New("api: invalid token")
	ErrTokenMismatch = errors.New("api: token subject does not match userId")
)

// authenticateWS validates the JWT presented on a push-channel upgrade
// request and returns the authenticated user ID.
//
// The token must be an HMAC-signed JWT whose subject matches the
// userId query parameter.
func (s *Server) authenticateWS(r *http.Request) (string, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		return "", ErrMissingToken
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrInvalidToken)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secCfg.JWT.Secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject != userID {
		return "", ErrTokenMismatch
	}

	return claims.Subject, nil
}

// IssueToken creates a signed JWT for the given user, valid for the
// configured access token TTL.
//
// Exposed for integrations that mint push-channel tokens after their
// own authentication step.
func (s *Server) IssueToken(userID string) (string, error) {
	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "havensync",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secCfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
