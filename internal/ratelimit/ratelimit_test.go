package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler)
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func serve(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 2, zerolog.Nop())
	router := newRouter(limiter.Middleware())

	for i := 0; i < 2; i++ {
		if rec := serve(router, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := serve(router, "10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}

	if rec := serve(router, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", rec.Code)
	}
}

func TestRateLimiterHeaders(t *testing.T) {
	router := newRouter(NewRateLimiter(5, 5, zerolog.Nop()).Middleware())

	rec := serve(router, "10.0.0.1:1234")
	if rec.Header().Get("X-RateLimit-Limit") != "5" {
		t.Errorf("Expected limit header 5, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Errorf("Expected remaining header 4, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(1, 1, zerolog.Nop())
	limiter.Allow("a")
	limiter.Allow("b")

	if n := limiter.Cleanup(time.Hour); n != 0 {
		t.Errorf("Expected no visitors removed, got %d", n)
	}
	if n := limiter.Cleanup(0); n != 2 {
		t.Errorf("Expected 2 visitors removed, got %d", n)
	}
}

func TestRunCleanupStops(t *testing.T) {
	limiter := NewRateLimiter(1, 1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		limiter.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected cleanup loop to stop")
	}
}

func TestThrottler(t *testing.T) {
	throttler := NewThrottler(1, zerolog.Nop())

	release, ok := throttler.Acquire()
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}
	if _, ok := throttler.Acquire(); ok {
		t.Error("Expected second acquire to fail")
	}

	router := newRouter(throttler.Middleware())
	if rec := serve(router, "10.0.0.1:1234"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while full, got %d", rec.Code)
	}

	release()
	if rec := serve(router, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 after release, got %d", rec.Code)
	}
}

func TestIPWhitelist(t *testing.T) {
	w := NewIPWhitelist("127.0.0.1")
	if !w.Contains("127.0.0.1") {
		t.Error("Expected 127.0.0.1 to be whitelisted")
	}

	w.Add("10.0.0.1")
	w.Remove("127.0.0.1")
	if w.Contains("127.0.0.1") || !w.Contains("10.0.0.1") {
		t.Error("Expected whitelist to reflect add and remove")
	}
}

func TestManagerMiddleware(t *testing.T) {
	manager := NewManager(Config{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
		MaxConcurrent:     10,
		WhitelistedIPs:    []string{"127.0.0.1"},
	}, zerolog.Nop())
	router := newRouter(manager.Middleware())

	if rec := serve(router, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec := serve(router, "10.0.0.1:1234"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}

	for i := 0; i < 3; i++ {
		if rec := serve(router, "127.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Errorf("Expected whitelisted request to pass, got %d", rec.Code)
		}
	}
}

func TestManagerDisabled(t *testing.T) {
	manager := NewManager(Config{RequestsPerSecond: 1, Burst: 1}, zerolog.Nop())
	router := newRouter(manager.Middleware())

	for i := 0; i < 3; i++ {
		if rec := serve(router, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Errorf("Expected disabled manager to pass, got %d", rec.Code)
		}
	}
}
