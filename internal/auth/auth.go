package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing token")
)

// Identity is the authenticated principal attached to a connection or an
// HTTP request.
type Identity struct {
	UserID   string
	Username string
	UserType string
}

// Resolver turns a bearer token into an identity.
type Resolver interface {
	Resolve(token string) (*Identity, error)
}

// Claims is the JWT payload issued by the account service.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens against a shared secret.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve parses and validates the token, returning the embedded identity.
func (r *JWTResolver) Resolve(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		UserType: claims.UserType,
	}, nil
}

// Sign issues a token for the identity, valid for ttl. Used by tests and
// local tooling; production tokens come from the account service.
func (r *JWTResolver) Sign(id *Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   id.UserID,
		Username: id.Username,
		UserType: id.UserType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
