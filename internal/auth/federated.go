package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
)

// Identity is what a verified provider ID token tells us about the user.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// FederatedVerifier checks RS256 ID tokens issued by an external identity provider.
type FederatedVerifier struct {
	pub      *rsa.PublicKey
	issuer   string
	audience string
	now      func() time.Time
}

func NewFederatedVerifier(pub *rsa.PublicKey, issuer, audience string) *FederatedVerifier {
	return &FederatedVerifier{pub: pub, issuer: issuer, audience: audience, now: time.Now}
}

// LoadRSAPublicKey reads a PEM encoded RSA public key.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return pub, nil
}

func (v *FederatedVerifier) Verify(idToken string) (*Identity, error) {
	claims := &idTokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	_, err := jwt.ParseWithClaims(idToken, claims, func(*jwt.Token) (any, error) {
		return v.pub, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("id token: %v: %w", err, apperrors.ErrAuthFailure)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("id token missing subject or email: %w", apperrors.ErrAuthFailure)
	}
	return &Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
