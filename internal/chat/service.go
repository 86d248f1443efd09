package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

const (
	previewRunes   = 120
	maxMessageRune = 4000
)

type Service struct {
	convs repository.Conversations
	bus   bus.Bus
}

func NewService(convs repository.Conversations, b bus.Bus) *Service {
	return &Service{convs: convs, bus: b}
}

// Authorize reports whether uid may read or write the conversation.
// Channels are open to every signed-in user; direct conversations to their two participants.
func (s *Service) Authorize(key, uid string) (Key, error) {
	k, err := ParseKey(key)
	if err != nil {
		return Key{}, err
	}
	if uid == "" || (k.Kind == models.KindDirect && !k.Has(uid)) {
		return Key{}, fmt.Errorf("conversation %s: %w", key, apperrors.ErrAuthFailure)
	}
	return k, nil
}

// Send appends a message. Whitespace-only text is rejected without writing anything.
func (s *Service) Send(ctx context.Context, key, senderID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty message: %w", apperrors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxMessageRune {
		return nil, fmt.Errorf("message longer than %d characters: %w", maxMessageRune, apperrors.ErrInvalidInput)
	}
	k, err := s.Authorize(key, senderID)
	if err != nil {
		return nil, err
	}

	conv := &models.Conversation{
		Key:          key,
		Kind:         k.Kind,
		LastMessage:  preview(text),
		LastSenderID: senderID,
	}
	if k.Kind == models.KindDirect {
		conv.Participants = k.Participants
	} else {
		conv.Name = k.Channel
		conv.Participants = []string{senderID}
	}
	if err := s.convs.Upsert(ctx, conv); err != nil {
		log.Error().Err(err).Str("key", key).Msg("conversation upsert failed")
		return nil, fmt.Errorf("update conversation: %v: %w", err, apperrors.ErrWriteFailure)
	}

	msg := &models.Message{ConversationKey: key, SenderID: senderID, Text: text}
	if err := s.convs.AppendMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("key", key).Msg("message append failed")
		return nil, fmt.Errorf("append message: %v: %w", err, apperrors.ErrWriteFailure)
	}
	metrics.MessagesSent.WithLabelValues(string(k.Kind)).Inc()

	s.publish(ctx, bus.ConversationTopic(key))
	for _, p := range conv.Participants {
		s.publish(ctx, bus.ConversationsTopic(p))
	}
	return msg, nil
}

// Feed is the newest limit messages of key in ascending order.
func (s *Service) Feed(key string, limit int) *realtime.Feed[[]models.Message] {
	return realtime.NewFeed("conversation", s.bus, func(ctx context.Context) ([]models.Message, error) {
		return s.convs.Recent(ctx, key, limit)
	}, bus.ConversationTopic(key))
}

func (s *Service) Subscribe(ctx context.Context, key string, limit int) *realtime.Subscription[[]models.Message] {
	return s.Feed(key, limit).Subscribe(ctx)
}

// History pages backwards from before. A zero cursor starts from the newest message.
func (s *Service) History(ctx context.Context, key string, before repository.Cursor, limit int) ([]models.Message, error) {
	return s.convs.Before(ctx, key, before, limit)
}

// Conversations lists the conversations uid takes part in, newest first.
func (s *Service) Conversations(ctx context.Context, uid string) ([]models.Conversation, error) {
	return s.convs.ListForUser(ctx, uid)
}

func (s *Service) ConversationsFeed(uid string) *realtime.Feed[[]models.Conversation] {
	return realtime.NewFeed("conversations", s.bus, func(ctx context.Context) ([]models.Conversation, error) {
		return s.convs.ListForUser(ctx, uid)
	}, bus.ConversationsTopic(uid))
}

func (s *Service) SubscribeConversations(ctx context.Context, uid string) *realtime.Subscription[[]models.Conversation] {
	return s.ConversationsFeed(uid).Subscribe(ctx)
}

func (s *Service) publish(ctx context.Context, topic string) {
	if err := s.bus.Publish(ctx, topic, nil); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("chat notify failed")
	}
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	r := []rune(text)
	return string(r[:previewRunes])
}
