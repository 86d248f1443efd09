package users

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/utils"
)

// AvatarUploader stores a processed avatar image and returns its reference.
// Resolve maps a stored reference to a URL clients can load.
type AvatarUploader interface {
	Upload(ctx context.Context, userID string, data []byte) (string, error)
	Resolve(ctx context.Context, ref string) (string, error)
}

type UpdateProfileInput struct {
	DisplayName string `json:"display_name" validate:"notblank,max=64"`
}

// Service owns user profiles and their change notifications.
type Service struct {
	repo    repository.Users
	bus     bus.Bus
	avatars AvatarUploader
}

func NewService(repo repository.Users, b bus.Bus, avatars AvatarUploader) *Service {
	return &Service{repo: repo, bus: b, avatars: avatars}
}

func (s *Service) Get(ctx context.Context, uid string) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, u), nil
}

// resolve swaps a stored avatar reference for a loadable URL. Failures keep the reference.
func (s *Service) resolve(ctx context.Context, u *models.User) *models.User {
	if u.AvatarURL == "" {
		return u
	}
	url, err := s.avatars.Resolve(ctx, u.AvatarURL)
	if err != nil {
		log.Warn().Err(err).Str("uid", u.ID).Msg("resolve avatar failed")
		return u
	}
	u.AvatarURL = url
	return u
}

func (s *Service) UpdateDisplayName(ctx context.Context, uid, name string) (*models.User, error) {
	in := UpdateProfileInput{DisplayName: strings.TrimSpace(name)}
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	u, err := s.repo.UpdateDisplayName(ctx, uid, in.DisplayName)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, uid)
	return s.resolve(ctx, u), nil
}

// SetAvatar records an already hosted avatar URL.
func (s *Service) SetAvatar(ctx context.Context, uid, url string) (*models.User, error) {
	u, err := s.repo.UpdateAvatar(ctx, uid, url)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, uid)
	return s.resolve(ctx, u), nil
}

// UploadAvatar processes raw image bytes (an upload or a camera capture) and sets the result.
func (s *Service) UploadAvatar(ctx context.Context, uid string, data []byte) (*models.User, error) {
	if _, err := s.repo.GetByID(ctx, uid); err != nil {
		return nil, err
	}
	url, err := s.avatars.Upload(ctx, uid, data)
	if err != nil {
		return nil, err
	}
	return s.SetAvatar(ctx, uid, url)
}

// Feed streams the profile of uid, starting with its current state.
func (s *Service) Feed(uid string) *realtime.Feed[*models.User] {
	return realtime.NewFeed("me", s.bus, func(ctx context.Context) (*models.User, error) {
		return s.Get(ctx, uid)
	}, bus.UserTopic(uid))
}

func (s *Service) notify(ctx context.Context, uid string) {
	if err := s.bus.Publish(ctx, bus.UserTopic(uid), nil); err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("user notify failed")
	}
}
