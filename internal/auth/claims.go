package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

// UserClaims is the token payload issued by the identity provider. The
// subject is the stable user id; the remaining claims describe the public
// profile and may be empty.
type UserClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

func (c *UserClaims) UserID() string {
	return c.Subject
}

// HasProfile reports whether the token carries any profile data.
func (c *UserClaims) HasProfile() bool {
	return c.Username != "" || c.Name != "" || c.Picture != ""
}

func (c *UserClaims) Profile() models.Profile {
	return models.Profile{
		UserID:      c.Subject,
		Username:    c.Username,
		DisplayName: c.Name,
		AvatarURL:   c.Picture,
	}
}

type ctxKey struct{}

func WithClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

// ClaimsFromContext returns nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) *UserClaims {
	claims, _ := ctx.Value(ctxKey{}).(*UserClaims)
	return claims
}
