package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"live-quiz-service/internal/domain"
)

// Identity is the caller behind a verified token.
type Identity struct {
	UserID string
	Name   string
}

// Claims are the JWT claims the service issues and accepts.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider issues and verifies HS256 tokens for identified users.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  func() time.Time
}

func NewJWTProvider(secret string, ttl time.Duration) *JWTProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTProvider{secret: []byte(secret), ttl: ttl, issuer: "live-quiz-service", clock: time.Now}
}

// Issue signs a token for userID.
func (p *JWTProvider) Issue(userID, name string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := p.clock()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// Resolve verifies a token and returns who it belongs to. Any failure maps to
// domain.ErrUnauthorized.
func (p *JWTProvider) Resolve(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return Identity{}, domain.ErrUnauthorized
	}
	return Identity{UserID: claims.Subject, Name: claims.Name}, nil
}
