// Package auth resolves the verified identity of an inbound connection
// before the relay starts. Token issuance lives with the account service;
// this package only needs the shared secret to validate what it issued.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized rejects a connection upgrade before the relay starts.
var ErrUnauthorized = errors.New("authentication required")

// Identity is the verified user behind a connection.
type Identity struct {
	UID      uint64
	Username string
	Mail     string
}

// Provider authenticates an HTTP request. It must run to completion before a
// connection is handed to the relay.
type Provider interface {
	Authenticate(r *http.Request) (Identity, error)
}

// TokenTTL is how long issued tokens remain valid.
const TokenTTL = 3 * 24 * time.Hour

type claims struct {
	UID      uint64 `json:"uid"`
	Username string `json:"username"`
	Mail     string `json:"mail"`
	jwt.RegisteredClaims
}

// JWTProvider validates HMAC-SHA256 bearer tokens carrying uid, username,
// and mail claims.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a provider around the shared signing secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// Issue signs a token for the identity, valid for TokenTTL.
func (p *JWTProvider) Issue(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UID:      id.UID,
		Username: id.Username,
		Mail:     id.Mail,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenTTL)),
		},
	})

	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate extracts and validates the request's token. The token is read
// from the Authorization header or, for browser websocket clients that cannot
// set headers, from the token query parameter.
func (p *JWTProvider) Authenticate(r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Identity{}, ErrUnauthorized
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(*jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return Identity{UID: c.UID, Username: c.Username, Mail: c.Mail}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return r.URL.Query().Get("token")
}
