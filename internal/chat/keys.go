package chat

import (
	"fmt"
	"strings"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/channels"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

const (
	channelPrefix = "#"
	keySeparator  = "_"
)

// DirectKey is symmetric: DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + keySeparator + b
}

func ChannelKey(name string) string {
	return channelPrefix + channels.Normalize(name)
}

// Key is a parsed conversation key.
type Key struct {
	Kind         models.ConversationKind
	Participants []string // direct only
	Channel      string   // channel only
}

func (k Key) String() string {
	if k.Kind == models.KindChannel {
		return channelPrefix + k.Channel
	}
	return DirectKey(k.Participants[0], k.Participants[1])
}

func (k Key) Has(uid string) bool {
	for _, p := range k.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

func ParseKey(key string) (Key, error) {
	if name, ok := strings.CutPrefix(key, channelPrefix); ok {
		if name == "" || channels.Normalize(name) != name {
			return Key{}, fmt.Errorf("channel key %q: %w", key, apperrors.ErrInvalidInput)
		}
		return Key{Kind: models.KindChannel, Channel: name}, nil
	}
	parts := strings.Split(key, keySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] > parts[1] {
		return Key{}, fmt.Errorf("conversation key %q: %w", key, apperrors.ErrInvalidInput)
	}
	return Key{Kind: models.KindDirect, Participants: parts}, nil
}

// KeyFor resolves the conversation key of a selected target as seen by self.
func KeyFor(self string, t models.Target) (string, error) {
	switch t.Kind {
	case models.KindDirect:
		if t.ID == "" || t.ID == self {
			return "", fmt.Errorf("direct target %q: %w", t.ID, apperrors.ErrInvalidInput)
		}
		return DirectKey(self, t.ID), nil
	case models.KindChannel:
		if channels.Normalize(t.ID) == "" {
			return "", fmt.Errorf("channel target: %w", apperrors.ErrInvalidInput)
		}
		return ChannelKey(t.ID), nil
	default:
		return "", fmt.Errorf("nothing selected: %w", apperrors.ErrInvalidInput)
	}
}
