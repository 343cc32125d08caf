// Package auth extracts caller identities from bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified caller. The zero value is anonymous.
type Identity struct {
	User  string
	Roles []string
	// raw Authorization header, forwarded to default wms backends
	Authorization string
}

func (i Identity) Anonymous() bool { return i.User == "" }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC signed tokens. A verifier without secret accepts
// anonymous requests only.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func (v *Verifier) Enabled() bool { return v != nil && len(v.secret) > 0 }

// FromRequest returns the identity carried by the Authorization header.
// Requests without a bearer token are anonymous.
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Identity{}, nil
	}
	if !v.Enabled() {
		return Identity{}, nil
	}
	id, err := v.Parse(strings.TrimSpace(token))
	if err != nil {
		return Identity{}, err
	}
	id.Authorization = header
	return id, nil
}

func (v *Verifier) Parse(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	user := c.Username
	if user == "" {
		user = c.Subject
	}
	return Identity{User: user, Roles: c.Roles}, nil
}
