package channels

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

var DefaultChannels = []string{"general", "random", "help", "announcements"}

// Selection is the session's current conversation target.
type Selection interface {
	Current() models.Target
	Set(t models.Target)
	ClearIf(t models.Target)
}

// Normalize lower-cases raw, trims it and joins whitespace-separated words with "-".
// "My Channel", " my channel " and "MY  CHANNEL" all become "my-channel".
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "-")
}

// Registry is the ordered channel list of one session. It lives in memory only.
type Registry struct {
	mu       sync.RWMutex
	names    []string
	sel      Selection
	onChange func(names []string)
}

func NewRegistry(defaults []string, sel Selection) *Registry {
	r := &Registry{sel: sel}
	for _, d := range defaults {
		n := Normalize(d)
		if n != "" && r.index(n) < 0 {
			r.names = append(r.names, n)
		}
	}
	return r
}

// OnChange sets a callback invoked with the new list after every mutation.
func (r *Registry) OnChange(fn func(names []string)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Registry) index(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Add appends a channel and selects it.
func (r *Registry) Add(raw string) (string, error) {
	name := Normalize(raw)
	if name == "" {
		return "", fmt.Errorf("channel name is required: %w", apperrors.ErrInvalidInput)
	}

	r.mu.Lock()
	if r.index(name) >= 0 {
		r.mu.Unlock()
		return "", fmt.Errorf("channel %q: %w", name, apperrors.ErrDuplicate)
	}
	r.names = append(r.names, name)
	r.mu.Unlock()

	r.selectName(name)
	r.changed()
	return name, nil
}

// Rename changes old to raw in place. The selection follows a renamed selected channel.
func (r *Registry) Rename(old, raw string) (string, error) {
	old = Normalize(old)
	name := Normalize(raw)
	if name == "" {
		return "", fmt.Errorf("channel name is required: %w", apperrors.ErrInvalidInput)
	}

	r.mu.Lock()
	i := r.index(old)
	if i < 0 {
		r.mu.Unlock()
		return "", fmt.Errorf("channel %q: %w", old, apperrors.ErrNotFound)
	}
	if name == old {
		r.mu.Unlock()
		return name, nil
	}
	if r.index(name) >= 0 {
		r.mu.Unlock()
		return "", fmt.Errorf("channel %q: %w", name, apperrors.ErrDuplicate)
	}
	r.names[i] = name
	r.mu.Unlock()

	if r.sel != nil && r.sel.Current() == channelTarget(old) {
		r.sel.Set(channelTarget(name))
	}
	r.changed()
	return name, nil
}

// Reorder moves the channel at from to position to.
func (r *Registry) Reorder(from, to int) error {
	r.mu.Lock()
	n := len(r.names)
	if from < 0 || from >= n || to < 0 || to >= n {
		r.mu.Unlock()
		return fmt.Errorf("reorder %d -> %d of %d channels: %w", from, to, n, apperrors.ErrInvalidInput)
	}
	if from == to {
		r.mu.Unlock()
		return nil
	}
	moved := r.names[from]
	rest := append(append([]string{}, r.names[:from]...), r.names[from+1:]...)
	r.names = append(rest[:to], append([]string{moved}, rest[to:]...)...)
	r.mu.Unlock()

	r.changed()
	return nil
}

// Select makes the named channel the current target.
func (r *Registry) Select(raw string) (models.Target, error) {
	name := Normalize(raw)
	r.mu.RLock()
	ok := r.index(name) >= 0
	r.mu.RUnlock()
	if !ok {
		return models.Target{}, fmt.Errorf("channel %q: %w", name, apperrors.ErrNotFound)
	}
	return r.selectName(name), nil
}

func (r *Registry) Has(raw string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index(Normalize(raw)) >= 0
}

// List returns a copy in display order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

func (r *Registry) selectName(name string) models.Target {
	t := channelTarget(name)
	if r.sel != nil {
		r.sel.Set(t)
	}
	return t
}

func (r *Registry) changed() {
	r.mu.RLock()
	fn := r.onChange
	names := append([]string(nil), r.names...)
	r.mu.RUnlock()
	if fn != nil {
		fn(names)
	}
}

func channelTarget(name string) models.Target {
	return models.Target{Kind: models.KindChannel, ID: name}
}
