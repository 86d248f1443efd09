package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/utils"
)

type SignUpInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	DisplayName string `json:"display_name" validate:"notblank,max=64"`
}

type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Service is the identity provider boundary: it owns credentials and issues tokens.
type Service struct {
	users     repository.Users
	tokens    *TokenManager
	store     TokenStore
	federated *FederatedVerifier
}

// NewService builds the auth service. federated may be nil when no provider is configured.
func NewService(users repository.Users, tokens *TokenManager, store TokenStore, federated *FederatedVerifier) *Service {
	return &Service{users: users, tokens: tokens, store: store, federated: federated}
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.User, *models.AuthTokens, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := utils.Validate(in); err != nil {
		return nil, nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		DisplayName:  in.DisplayName,
		Email:        in.Email,
		Provider:     models.ProviderPassword,
		PasswordHash: string(hashed),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}
	log.Info().Str("uid", user.ID).Msg("user signed up")

	tokens, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// SignIn checks email and password. Unknown email and wrong password fail the same way.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (*models.User, *models.AuthTokens, error) {
	if err := utils.Validate(in); err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("invalid credentials: %w", apperrors.ErrAuthFailure)
		}
		return nil, nil, err
	}
	if user.PasswordHash == "" {
		return nil, nil, fmt.Errorf("account uses federated sign-in: %w", apperrors.ErrAuthFailure)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, nil, fmt.Errorf("invalid credentials: %w", apperrors.ErrAuthFailure)
	}

	tokens, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// SignInWithFederatedProvider accepts an ID token from the configured provider.
// The first sign-in of a subject creates its account.
func (s *Service) SignInWithFederatedProvider(ctx context.Context, idToken string) (*models.User, *models.AuthTokens, error) {
	if s.federated == nil {
		return nil, nil, fmt.Errorf("federated sign-in is not configured: %w", apperrors.ErrAuthFailure)
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, nil, fmt.Errorf("id_token is required: %w", apperrors.ErrInvalidInput)
	}
	id, err := s.federated.Verify(idToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByProviderSubject(ctx, models.ProviderFederated, id.Subject)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		name := strings.TrimSpace(id.Name)
		if name == "" {
			name = strings.SplitN(id.Email, "@", 2)[0]
		}
		user = &models.User{
			ID:              uuid.NewString(),
			DisplayName:     name,
			Email:           id.Email,
			AvatarURL:       id.Picture,
			Provider:        models.ProviderFederated,
			ProviderSubject: id.Subject,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, nil, err
		}
		log.Info().Str("uid", user.ID).Msg("federated user created")
	case err != nil:
		return nil, nil, err
	}

	tokens, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Refresh rotates a refresh token. Each refresh token can be used once; replaying
// an old one also revokes the current one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	userID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.Consume(ctx, userID, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("refresh token revoked: %w", apperrors.ErrAuthFailure)
	}
	return s.issue(ctx, userID)
}

// SignOut revokes the user's refresh token. Access tokens stay valid until they expire.
func (s *Service) SignOut(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	log.Info().Str("uid", userID).Msg("user signed out")
	return nil
}

// Authenticate resolves an access token to a user id.
func (s *Service) Authenticate(accessToken string) (string, error) {
	return s.tokens.ParseAccess(accessToken)
}

func (s *Service) issue(ctx context.Context, userID string) (*models.AuthTokens, error) {
	access, exp, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, _, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.Save(ctx, userID, refresh, s.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &models.AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp.Unix(),
	}, nil
}
