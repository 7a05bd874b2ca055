package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "mdpreview"

type tokenPurpose string

const (
	purposeSession  tokenPurpose = "session"
	purposeRecovery tokenPurpose = "recovery"
	purposeVerify   tokenPurpose = "verify"
	purposeState    tokenPurpose = "oauth_state"
)

type tokenClaims struct {
	Purpose    tokenPurpose `json:"typ"`
	Generation int          `json:"gen,omitempty"`
	Email      string       `json:"email,omitempty"`
	Next       string       `json:"next,omitempty"`
	jwt.RegisteredClaims
}

type tokens struct {
	secret []byte
	now    func() time.Time
}

func (t tokens) mint(c tokenClaims, ttl time.Duration) (string, error) {
	now := t.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   c.Subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(t.secret)
}

// parse validates signature, expiry and purpose. Every failure is ErrInvalidToken.
func (t tokens) parse(raw string, want tokenPurpose) (*tokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != want || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func jwtSubject(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: sub}
}
