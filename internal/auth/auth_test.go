package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/cache"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

func newService(t *testing.T, fed *FederatedVerifier) (*Service, *repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	tm := NewTokenManager("test-secret", "realtime-chat", 15*time.Minute, 24*time.Hour)
	return NewService(store.Users, tm, NewMemoryTokenStore(), fed), store
}

func TestSignUpThenSignInYieldsSameUser(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	created, tokens, err := svc.SignUp(ctx, SignUpInput{Email: "Ann@Example.com", Password: "hunter22", DisplayName: "  Ann "})
	require.NoError(t, err)
	assert.Equal(t, "Ann", created.DisplayName)
	assert.NotEmpty(t, tokens.AccessToken)

	signedIn, _, err := svc.SignIn(ctx, SignInInput{Email: "ann@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, signedIn.ID)

	uid, err := svc.Authenticate(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, uid)
}

func TestSignInFailures(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	_, _, err := svc.SignUp(ctx, SignUpInput{Email: "ann@example.com", Password: "hunter22", DisplayName: "Ann"})
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, SignInInput{Email: "ann@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)

	_, _, err = svc.SignIn(ctx, SignInInput{Email: "nobody@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)

	_, _, err = svc.SignIn(ctx, SignInInput{Email: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSignUpRejectsDuplicateAndInvalid(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	_, _, err := svc.SignUp(ctx, SignUpInput{Email: "ann@example.com", Password: "hunter22", DisplayName: "Ann"})
	require.NoError(t, err)

	_, _, err = svc.SignUp(ctx, SignUpInput{Email: "ANN@example.com", Password: "hunter22", DisplayName: "Ann 2"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	_, _, err = svc.SignUp(ctx, SignUpInput{Email: "b@example.com", Password: "123", DisplayName: " "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRefreshRotatesAndSignOutRevokes(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	user, first, err := svc.SignUp(ctx, SignUpInput{Email: "ann@example.com", Password: "hunter22", DisplayName: "Ann"})
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure, "a used refresh token cannot be replayed")

	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure, "replaying a rotated token revokes the live one")

	_, third, err := svc.SignIn(ctx, SignInInput{Email: "ann@example.com", Password: "hunter22"})
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, third.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure, "access tokens are not refresh tokens")

	require.NoError(t, svc.SignOut(ctx, user.ID))
	_, err = svc.Refresh(ctx, third.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
}

func TestConcurrentRefreshRedeemsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })

	stores := map[string]TokenStore{
		"memory": NewMemoryTokenStore(),
		"redis":  NewRedisTokenStore(cache.New(rdb, "chat")),
	}
	for name, tokens := range stores {
		t.Run(name, func(t *testing.T) {
			repo := repository.NewMemoryStore()
			tm := NewTokenManager("test-secret", "realtime-chat", 15*time.Minute, 24*time.Hour)
			svc := NewService(repo.Users, tm, tokens, nil)
			ctx := context.Background()
			_, issued, err := svc.SignUp(ctx, SignUpInput{Email: name + "@example.com", Password: "hunter22", DisplayName: "Ann"})
			require.NoError(t, err)

			var (
				wg       sync.WaitGroup
				redeemed atomic.Int32
			)
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.Refresh(ctx, issued.RefreshToken); err == nil {
						redeemed.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), redeemed.Load())
		})
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	tm := NewTokenManager("s", "iss", time.Minute, time.Hour)
	token, _, err := tm.GenerateAccessToken("u1")
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseAccess(token)
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)

	other := NewTokenManager("different", "iss", time.Minute, time.Hour)
	_, err = other.ParseAccess(token)
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims idTokenClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestFederatedSignInCreatesOnce(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fed := NewFederatedVerifier(&key.PublicKey, "https://accounts.example.com", "chat-client")
	svc, store := newService(t, fed)
	ctx := context.Background()

	claims := idTokenClaims{
		Email: "fed@example.com",
		Name:  "Fed User",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.example.com",
			Subject:   "provider-123",
			Audience:  jwt.ClaimStrings{"chat-client"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	first, tokens, err := svc.SignInWithFederatedProvider(ctx, signIDToken(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, "Fed User", first.DisplayName)
	assert.NotEmpty(t, tokens.AccessToken)

	again, _, err := svc.SignInWithFederatedProvider(ctx, signIDToken(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	stored, err := store.Users.GetByEmail(ctx, "fed@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)

	claims.Audience = jwt.ClaimStrings{"someone-else"}
	_, _, err = svc.SignInWithFederatedProvider(ctx, signIDToken(t, key, claims))
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
}

func TestFederatedNotConfigured(t *testing.T) {
	svc, _ := newService(t, nil)
	_, _, err := svc.SignInWithFederatedProvider(context.Background(), "whatever")
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
}
