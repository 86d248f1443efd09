package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
)

// Tracker publishes online/offline markers for signed-in users. Write failures are
// logged and counted; callers never see them.
//
// Run keeps the markers of attached connections alive and notifies subscribers
// when a marker this process has seen online lapses.
type Tracker struct {
	store Store
	bus   bus.Bus
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	live   map[string]int      // attached connections per user
	online map[string]struct{} // users last seen online
	done   chan struct{}
	once   sync.Once
}

func NewTracker(store Store, b bus.Bus, ttl time.Duration) *Tracker {
	return &Tracker{
		store:  store,
		bus:    b,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		live:   map[string]int{},
		online: map[string]struct{}{},
		done:   make(chan struct{}),
	}
}

// Start marks uid online and arranges for it to go offline when conn drops.
// An empty uid (signed out) is a no-op.
func (t *Tracker) Start(ctx context.Context, conn *realtime.Conn, uid string) {
	if uid == "" {
		return
	}
	t.mu.Lock()
	t.live[uid]++
	t.mu.Unlock()
	t.write(ctx, uid, models.Online)
	conn.OnDisconnect(func(ctx context.Context) {
		t.mu.Lock()
		if t.live[uid]--; t.live[uid] <= 0 {
			delete(t.live, uid)
		}
		t.mu.Unlock()
		t.write(ctx, uid, models.Offline)
	})
}

// Run sweeps every third of the marker TTL until Close.
func (t *Tracker) Run() {
	interval := t.ttl / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.sweep(context.Background())
		}
	}
}

func (t *Tracker) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Tracker) sweep(ctx context.Context) {
	t.mu.Lock()
	live := make([]string, 0, len(t.live))
	for uid := range t.live {
		live = append(live, uid)
	}
	var watched []string
	for uid := range t.online {
		if _, ok := t.live[uid]; !ok {
			watched = append(watched, uid)
		}
	}
	t.mu.Unlock()

	for _, uid := range live {
		t.Heartbeat(ctx, uid)
	}
	for _, uid := range watched {
		p, err := t.store.Get(ctx, uid)
		if err != nil {
			log.Warn().Err(err).Str("uid", uid).Msg("presence sweep failed")
			continue
		}
		if p.State == models.Online {
			continue
		}
		t.mu.Lock()
		delete(t.online, uid)
		t.mu.Unlock()
		metrics.PresenceWrites.WithLabelValues("expired", "ok").Inc()
		t.notify(ctx, uid)
	}
}

func (t *Tracker) seen(uid string, state models.PresenceState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state == models.Online {
		t.online[uid] = struct{}{}
	} else {
		delete(t.online, uid)
	}
}

func (t *Tracker) notify(ctx context.Context, uid string) {
	if err := t.bus.Publish(ctx, bus.PresenceTopic(uid), nil); err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("presence notify failed")
	}
}

// Stop marks uid offline right away, e.g. on sign-out.
func (t *Tracker) Stop(ctx context.Context, uid string) {
	if uid == "" {
		return
	}
	t.write(ctx, uid, models.Offline)
}

// Heartbeat keeps the online marker of a live connection from expiring.
func (t *Tracker) Heartbeat(ctx context.Context, uid string) {
	if uid == "" {
		return
	}
	ok, err := t.store.Touch(ctx, uid, t.ttl)
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("presence heartbeat failed")
		metrics.PresenceWrites.WithLabelValues("heartbeat", "error").Inc()
		return
	}
	if !ok {
		// marker expired or was overwritten by another connection's disconnect
		t.write(ctx, uid, models.Online)
	}
}

func (t *Tracker) Get(ctx context.Context, uid string) (models.Presence, error) {
	return t.store.Get(ctx, uid)
}

// Feed streams the presence of uid.
func (t *Tracker) Feed(uid string) *realtime.Feed[models.Presence] {
	return realtime.NewFeed("presence", t.bus, func(ctx context.Context) (models.Presence, error) {
		p, err := t.store.Get(ctx, uid)
		if err == nil {
			t.seen(uid, p.State)
		}
		return p, err
	}, bus.PresenceTopic(uid))
}

func (t *Tracker) write(ctx context.Context, uid string, state models.PresenceState) {
	p := models.Presence{UserID: uid, State: state, LastChanged: t.now()}
	var ttl time.Duration
	if state == models.Online {
		ttl = t.ttl
	}
	if err := t.store.Set(ctx, p, ttl); err != nil {
		log.Warn().Err(err).Str("uid", uid).Str("state", string(state)).Msg("presence write failed")
		metrics.PresenceWrites.WithLabelValues(string(state), "error").Inc()
		return
	}
	metrics.PresenceWrites.WithLabelValues(string(state), "ok").Inc()
	t.seen(uid, state)
	t.notify(ctx, uid)
}
