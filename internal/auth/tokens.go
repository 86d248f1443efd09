package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies the service's own HS256 tokens.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) generate(userID, audience string, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return signed, exp, err
}

func (m *TokenManager) GenerateAccessToken(userID string) (string, time.Time, error) {
	return m.generate(userID, audienceAccess, m.accessTTL)
}

func (m *TokenManager) GenerateRefreshToken(userID string) (string, time.Time, error) {
	return m.generate(userID, audienceRefresh, m.refreshTTL)
}

func (m *TokenManager) parse(tokenStr, audience string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s token expired: %w", audience, apperrors.ErrAuthFailure)
		}
		return nil, fmt.Errorf("invalid %s token: %w", audience, apperrors.ErrAuthFailure)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token without user: %w", apperrors.ErrAuthFailure)
	}
	return claims, nil
}

// ParseAccess returns the user id of a valid access token.
func (m *TokenManager) ParseAccess(tokenStr string) (string, error) {
	claims, err := m.parse(tokenStr, audienceAccess)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (m *TokenManager) ParseRefresh(tokenStr string) (string, error) {
	claims, err := m.parse(tokenStr, audienceRefresh)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
