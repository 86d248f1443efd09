package middleware

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Counter is a shared fixed-window counter, normally backed by Redis.
type Counter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimiter struct {
	counter Counter
	prefix  string
	limit   int
	window  time.Duration
}

func NewRateLimiter(counter Counter, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, prefix: prefix, limit: limit, window: window}
}

// MiddlewareByKey limits requests sharing keyFunc(c). Counter failures let the request through.
func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := r.prefix + ":" + keyFunc(c)
		ok, err := r.counter.Allow(c.UserContext(), key, r.limit, r.window)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			return c.Next()
		}
		if !ok {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

// ByUserOrIP keys on the authenticated user, falling back to the client IP.
func ByUserOrIP(c *fiber.Ctx) string {
	if uid := UserID(c); uid != "" {
		return "u:" + uid
	}
	return "ip:" + clientIP(c)
}

// IPRateLimiter is the in-process limiter used when no Redis is configured.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 5
	}
	l := &IPRateLimiter{
		visitors: map[string]*visitor{},
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupVisitors()
	return l
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

func (l *IPRateLimiter) cleanupVisitors() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.evict(l.now().Add(-5 * time.Minute))
		}
	}
}

func (l *IPRateLimiter) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

func (l *IPRateLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := clientIP(c)
		if !l.limiter(ip).Allow() {
			log.Warn().Str("ip", ip).Str("path", c.Path()).Msg("rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

func clientIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
