// Package auth holds the pluggable authentication collaborators: optional JWT
// validation for socket auth frames and the shared-secret check for the admin
// HTTP surface.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SocketClaims holds the JWT claims accepted on an auth frame's token field.
type SocketClaims struct {
	jwt.RegisteredClaims
}

// ValidateSocketToken parses and validates a socket auth token, enforcing HMAC
// signing. It returns the token subject, which the gateway compares against the
// claimed uuid.
func ValidateSocketToken(tokenStr, secret string) (string, error) {
	claims := &SocketClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
