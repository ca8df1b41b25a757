package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/renloop/chat-service/internal/domain"
)

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID string
}

// Verifier validates bearer tokens presented by clients.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// Claims represents the JWT claims this service accepts.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// JWTVerifier verifies HS256-signed tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify validates the token signature and expiry and returns the
// caller's identity. Any failure maps to domain.ErrInvalidToken.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, domain.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, domain.ErrInvalidToken
	}

	return &Identity{UserID: userID}, nil
}
