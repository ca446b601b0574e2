// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration
type Config struct {
	PerMinute     int           // Sustained requests per minute per client
	Burst         int           // Requests a client may make at once
	IdleTimeout   time.Duration // Clients idle this long are forgotten
	CleanupPeriod time.Duration // How often idle clients are swept
}

// InvocationConfig limits model invocations (send, regenerate, replay start) per client.
func InvocationConfig(perMinute int) *Config {
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &Config{
		PerMinute:     perMinute,
		Burst:         burst,
		IdleTimeout:   30 * time.Minute,
		CleanupPeriod: 10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client identifier.
type Limiter struct {
	config  *Config
	mu      sync.Mutex
	clients map[string]*client
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// Info describes the outcome of one Allow call.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// NewLimiter starts a limiter and its cleanup loop. Close stops the loop.
func NewLimiter(config *Config) *Limiter {
	l := &Limiter{
		config:  config,
		clients: make(map[string]*client),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	if config.CleanupPeriod > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow takes a token for identifier if one is available.
func (l *Limiter) Allow(identifier string) Info {
	now := l.now()
	lim := l.limiterFor(identifier, now)

	info := Info{Limit: l.config.Burst}
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		info.RetryAfter = delay
		return info
	}
	info.Allowed = true
	info.Remaining = int(math.Max(0, math.Floor(lim.TokensAt(now))))
	return info
}

func (l *Limiter) limiterFor(identifier string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[identifier]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(max(l.config.PerMinute, 1)))
		c = &client{limiter: rate.NewLimiter(every, max(l.config.Burst, 1))}
		l.clients[identifier] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup forgets clients idle longer than IdleTimeout.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) > l.config.IdleTimeout {
			delete(l.clients, id)
		}
	}
}

// Close stops the cleanup goroutine
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stopCh) })
}

// GetClientIP extracts the real client IP from request
func GetClientIP(r *http.Request) string {
	// Behind a proxy or load balancer the first forwarded address is the client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
