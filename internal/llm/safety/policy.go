// Package safety throttles assistant calls per chat.
package safety

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	Enabled            bool
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitMessage   string
}

type Request struct {
	ChatID  string
	IsAdmin bool
}

type Decision struct {
	Allowed bool
	Notify  string
	Reason  string
}

// Policy keeps one token bucket per chat: RateLimitPerWindow tokens refilled
// evenly over RateLimitWindow.
type Policy struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func New(cfg Config) *Policy {
	if cfg.RateLimitPerWindow < 1 {
		cfg.RateLimitPerWindow = 8
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if strings.TrimSpace(cfg.RateLimitMessage) == "" {
		cfg.RateLimitMessage = "⏳ Estás enviando mensajes muy rápido. Intenta de nuevo en un momento."
	}
	return &Policy{
		cfg:     cfg,
		now:     time.Now,
		buckets: map[string]*rate.Limiter{},
	}
}

func (p *Policy) Check(input Request) Decision {
	if !p.cfg.Enabled {
		return Decision{Allowed: true, Reason: "disabled"}
	}
	if input.IsAdmin {
		return Decision{Allowed: true}
	}
	if !p.limiter(input.ChatID).AllowN(p.now(), 1) {
		return Decision{Allowed: false, Notify: p.cfg.RateLimitMessage, Reason: "rate_limited"}
	}
	return Decision{Allowed: true}
}

func (p *Policy) limiter(chatID string) *rate.Limiter {
	key := strings.ToLower(strings.TrimSpace(chatID))
	if key == "" {
		key = "unknown"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.buckets[key]
	if !ok {
		every := p.cfg.RateLimitWindow / time.Duration(p.cfg.RateLimitPerWindow)
		limiter = rate.NewLimiter(rate.Every(every), p.cfg.RateLimitPerWindow)
		p.buckets[key] = limiter
	}
	return limiter
}
