package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const visitorTTL = time.Hour

// RateLimiter limits requests per client IP
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.Mutex
	rps      int
	burst    int
	logger   zerolog.Logger
}

// Visitor represents a visitor with rate limiting info
type Visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter allowing rps requests per
// second per client
func NewRateLimiter(rps, burst int, logger zerolog.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		rps:      rps,
		burst:    burst,
		logger:   logger,
	}
}

// Allow reports whether a request from key may proceed, and the tokens
// left for it
func (rl *RateLimiter) Allow(key string) (bool, int) {
	limiter := rl.getLimiter(key)
	allowed := limiter.Allow()
	return allowed, int(limiter.Tokens())
}

// getLimiter gets or creates a limiter for a visitor
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.visitors[key] = &Visitor{
			limiter:  limiter,
			lastSeen: time.Now(),
		}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup removes visitors idle for longer than ttl
func (rl *RateLimiter) Cleanup(ttl time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > ttl {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// RunCleanup removes idle visitors every interval until ctx is done
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := rl.Cleanup(visitorTTL); n > 0 {
				rl.logger.Debug().Int("count", n).Msg("Removed idle visitors")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Middleware creates a rate limiting middleware
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		allowed, remaining := rl.Allow(ip)
		if !allowed {
			rl.logger.Warn().Str("ip", ip).Msg("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": "1s",
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rps))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}

// Throttler bounds the number of requests served concurrently
type Throttler struct {
	requests chan struct{}
	logger   zerolog.Logger
}

// NewThrottler creates a new throttler
func NewThrottler(maxConcurrent int, logger zerolog.Logger) *Throttler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Throttler{
		requests: make(chan struct{}, maxConcurrent),
		logger:   logger,
	}
}

// Acquire takes a slot without waiting. The returned release function
// must be called when it succeeds.
func (t *Throttler) Acquire() (func(), bool) {
	select {
	case t.requests <- struct{}{}:
		return func() { <-t.requests }, true
	default:
		return nil, false
	}
}

// Middleware creates a throttling middleware
func (t *Throttler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		release, ok := t.Acquire()
		if !ok {
			t.logger.Warn().Msg("Server overloaded")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Server overloaded, please try again later",
			})
			return
		}
		defer release()
		c.Next()
	}
}

// IPWhitelist represents a whitelist of IPs that bypass rate limiting
type IPWhitelist struct {
	ips map[string]bool
	mu  sync.RWMutex
}

// NewIPWhitelist creates a new IP whitelist
func NewIPWhitelist(ips ...string) *IPWhitelist {
	w := &IPWhitelist{ips: make(map[string]bool)}
	for _, ip := range ips {
		w.ips[ip] = true
	}
	return w
}

// Add adds an IP to the whitelist
func (w *IPWhitelist) Add(ip string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ips[ip] = true
}

// Remove removes an IP from the whitelist
func (w *IPWhitelist) Remove(ip string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ips, ip)
}

// Contains checks if an IP is in the whitelist
func (w *IPWhitelist) Contains(ip string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ips[ip]
}

// Config represents rate limiting configuration
type Config struct {
	Enabled           bool
	RequestsPerSecond int
	Burst             int
	MaxConcurrent     int
	WhitelistedIPs    []string
}

// Manager combines the whitelist, throttler and rate limiter
type Manager struct {
	rateLimiter *RateLimiter
	throttler   *Throttler
	whitelist   *IPWhitelist
	config      Config
	logger      zerolog.Logger
}

// NewManager creates a new rate limiting manager
func NewManager(config Config, logger zerolog.Logger) *Manager {
	logger = logger.With().Str("component", "ratelimit").Logger()

	return &Manager{
		config:      config,
		whitelist:   NewIPWhitelist(config.WhitelistedIPs...),
		rateLimiter: NewRateLimiter(config.RequestsPerSecond, config.Burst, logger),
		throttler:   NewThrottler(config.MaxConcurrent, logger),
		logger:      logger,
	}
}

// Start runs visitor cleanup until ctx is done
func (m *Manager) Start(ctx context.Context) {
	if m.config.Enabled {
		go m.rateLimiter.RunCleanup(ctx, 10*time.Minute)
	}
}

// Middleware returns the middleware for the configuration
func (m *Manager) Middleware() gin.HandlerFunc {
	if !m.config.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	throttle := m.throttler.Middleware()

	return func(c *gin.Context) {
		if m.whitelist.Contains(c.ClientIP()) {
			c.Next()
			return
		}

		allowed, remaining := m.rateLimiter.Allow(c.ClientIP())
		if !allowed {
			m.logger.Warn().Str("ip", c.ClientIP()).Msg("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": "1s",
			})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(m.config.RequestsPerSecond))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		throttle(c)
	}
}
