// Package identity derives the active viewer from an already-issued session
// token. The client never verifies signatures; the backend does that on
// every request. Identity here only keys client-side state.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/feedsync/pkg/models"
)

// Claims is the session token payload the backend issues
type Claims struct {
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// FromToken returns the viewer described by token. An empty token is a
// guest viewer, not an error.
func FromToken(token string) (models.Viewer, error) {
	if token == "" {
		return models.Viewer{Role: models.RoleGuest}, nil
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Viewer{}, fmt.Errorf("failed to parse session token: %w", err)
	}
	if claims.Subject == "" {
		return models.Viewer{}, fmt.Errorf("session token has no subject")
	}

	viewer := models.Viewer{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Handle:      claims.Handle,
		Role:        models.UserRole(claims.Role),
	}
	viewer.Role = models.RoleFor(viewer)
	return viewer, nil
}

// Issue signs a token for viewer with an HMAC secret. Used by the fake
// backend and by tests.
func Issue(viewer models.Viewer, secret []byte) (string, error) {
	claims := Claims{
		Name:   viewer.DisplayName,
		Handle: viewer.Handle,
		Role:   string(viewer.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: viewer.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks an HMAC-signed token and returns its subject
func Verify(token string, secret []byte) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	return claims.Subject, nil
}
