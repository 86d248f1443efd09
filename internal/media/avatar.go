package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
)

type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultMaxDimension bounds the width and height of a decoded upload.
const DefaultMaxDimension = 8192

// AvatarService turns an uploaded or captured image into a square JPEG avatar.
type AvatarService struct {
	store    ObjectStore
	cb       *gobreaker.CircuitBreaker
	size     int
	maxBytes int
	maxDim   int
}

func NewAvatarService(store ObjectStore, size, maxBytes int, bs BreakerSettings) *AvatarService {
	st := gobreaker.Settings{
		Name:        "avatar-upload",
		MaxRequests: 1,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("name", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state")
		},
	}
	return &AvatarService{store: store, cb: gobreaker.NewCircuitBreaker(st), size: size, maxBytes: maxBytes, maxDim: DefaultMaxDimension}
}

// SetMaxDimension changes the pixel bound checked before decoding. Non-positive values are ignored.
func (s *AvatarService) SetMaxDimension(px int) {
	if px > 0 {
		s.maxDim = px
	}
}

// Resolve turns a stored avatar reference into a URL a client can load.
func (s *AvatarService) Resolve(ctx context.Context, ref string) (string, error) {
	return s.store.Resolve(ctx, ref)
}

// Upload resizes data and stores it, returning the stored reference.
func (s *AvatarService) Upload(ctx context.Context, userID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image: %w", apperrors.ErrInvalidInput)
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return "", fmt.Errorf("image larger than %d bytes: %w", s.maxBytes, apperrors.ErrInvalidInput)
	}

	out, err := s.resize(data)
	if err != nil {
		metrics.AvatarUploads.WithLabelValues("invalid").Inc()
		return "", err
	}

	key := fmt.Sprintf("avatars/%s/%s.jpg", userID, uuid.NewString())
	res, err := s.cb.Execute(func() (any, error) {
		return s.store.Upload(ctx, key, "image/jpeg", out)
	})
	if err != nil {
		metrics.AvatarUploads.WithLabelValues("error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().Str("uid", userID).Msg("avatar upload rejected, breaker open")
		} else {
			log.Error().Err(err).Str("uid", userID).Msg("avatar upload failed")
		}
		return "", fmt.Errorf("upload avatar: %v: %w", err, apperrors.ErrWriteFailure)
	}
	metrics.AvatarUploads.WithLabelValues("ok").Inc()
	return res.(string), nil
}

func (s *AvatarService) resize(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %v: %w", err, apperrors.ErrInvalidInput)
	}
	if cfg.Width > s.maxDim || cfg.Height > s.maxDim {
		return nil, fmt.Errorf("image %dx%d exceeds %dpx: %w", cfg.Width, cfg.Height, s.maxDim, apperrors.ErrInvalidInput)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, apperrors.ErrInvalidInput)
	}
	square := imaging.Fill(img, s.size, s.size, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, square, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
