package friends

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

// Selection is the session's current conversation target.
type Selection interface {
	Current() models.Target
	Set(t models.Target)
	// ClearIf clears the selection only when it still equals t.
	ClearIf(t models.Target)
}

type Service struct {
	users   repository.Users
	friends repository.Friends
	bus     bus.Bus
}

func NewService(users repository.Users, friends repository.Friends, b bus.Bus) *Service {
	return &Service{users: users, friends: friends, bus: b}
}

// Lookup finds a user id by exact display name. With duplicates the earliest account wins.
func (s *Service) Lookup(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required: %w", apperrors.ErrInvalidInput)
	}
	u, err := s.users.FindByDisplayName(ctx, name)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// Directory returns the friends list of ownerID bound to the owner's selection.
func (s *Service) Directory(ownerID string, sel Selection) *Directory {
	return &Directory{svc: s, owner: ownerID, sel: sel}
}

// Directory is one user's view of their friends.
type Directory struct {
	svc   *Service
	owner string
	sel   Selection
}

func (d *Directory) Owner() string { return d.owner }

// Add befriends the user with the given display name.
func (d *Directory) Add(ctx context.Context, name string) (*models.FriendRef, error) {
	friendID, err := d.svc.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if friendID == d.owner {
		return nil, fmt.Errorf("add %q: %w", name, apperrors.ErrSelfReference)
	}
	if _, err := d.svc.friends.Get(ctx, d.owner, friendID); err == nil {
		return nil, fmt.Errorf("add %q: %w", name, apperrors.ErrDuplicate)
	}

	ref := &models.FriendRef{OwnerID: d.owner, FriendID: friendID, DisplayName: strings.TrimSpace(name)}
	if err := d.svc.friends.Add(ctx, ref); err != nil {
		return nil, err
	}
	log.Debug().Str("owner", d.owner).Str("friend", friendID).Msg("friend added")
	d.notify(ctx)
	return ref, nil
}

// Remove deletes friendID and clears the selection if it pointed at them.
func (d *Directory) Remove(ctx context.Context, friendID string) error {
	if err := d.svc.friends.Remove(ctx, d.owner, friendID); err != nil {
		return err
	}
	if d.sel != nil {
		d.sel.ClearIf(models.Target{Kind: models.KindDirect, ID: friendID})
	}
	d.notify(ctx)
	return nil
}

// List returns the friends sorted by display name, case-insensitively.
func (d *Directory) List(ctx context.Context) ([]models.FriendRef, error) {
	refs, err := d.svc.friends.List(ctx, d.owner)
	if err != nil {
		return nil, err
	}
	sortRefs(refs)
	return refs, nil
}

// Feed delivers the complete sorted list on every change.
func (d *Directory) Feed() *realtime.Feed[[]models.FriendRef] {
	return realtime.NewFeed("friends", d.svc.bus, d.List, bus.FriendsTopic(d.owner))
}

func (d *Directory) Subscribe(ctx context.Context) *realtime.Subscription[[]models.FriendRef] {
	return d.Feed().Subscribe(ctx)
}

// Select makes the direct conversation with friendID the current target.
func (d *Directory) Select(ctx context.Context, friendID string) (models.Target, error) {
	if _, err := d.svc.friends.Get(ctx, d.owner, friendID); err != nil {
		return models.Target{}, err
	}
	t := models.Target{Kind: models.KindDirect, ID: friendID}
	if d.sel != nil {
		d.sel.Set(t)
	}
	return t, nil
}

func (d *Directory) notify(ctx context.Context) {
	if err := d.svc.bus.Publish(ctx, bus.FriendsTopic(d.owner), nil); err != nil {
		log.Warn().Err(err).Str("owner", d.owner).Msg("friends notify failed")
	}
}

func sortRefs(refs []models.FriendRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		a, b := strings.ToLower(refs[i].DisplayName), strings.ToLower(refs[j].DisplayName)
		if a != b {
			return a < b
		}
		return refs[i].FriendID < refs[j].FriendID
	})
}
