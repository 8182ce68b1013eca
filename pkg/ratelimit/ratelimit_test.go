package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
)

func TestLimiter(t *testing.T) {
	// burst of 2 means two immediate requests pass
	limiter := NewLimiter(10, 2)

	assert.True(t, limiter.Allow("test-key"))
	assert.True(t, limiter.Allow("test-key"))
	assert.False(t, limiter.Allow("test-key"), "third request should be rate limited")
	assert.True(t, limiter.Allow("other-key"), "keys are independent")

	// 10 req/s refills one token every 100ms
	time.Sleep(150 * time.Millisecond)
	assert.True(t, limiter.Allow("test-key"))
}

func TestCleanupOldLimiters(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(10, 2)
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	now = now.Add(time.Hour)
	limiter.Allow("fresh")
	require.Equal(t, 2, limiter.Len())

	assert.Equal(t, 1, limiter.CleanupOldLimiters(30*time.Minute))
	assert.Equal(t, 1, limiter.Len())
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(10, 2)

	handler := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/coprs", nil))
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		expectedKey   string
	}{
		{"direct connection", "192.168.1.1:12345", "", "192.168.1.1"},
		{"forwarded header ignored", "192.168.1.1:12345", "203.0.113.1", "192.168.1.1"},
		{"no port", "192.168.1.1", "", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			assert.Equal(t, tt.expectedKey, IPKeyFunc(req))
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	assert.Equal(t, "ip:192.168.1.1", UserKeyFunc(req))

	authed := req.WithContext(rbac.WithUser(req.Context(), &models.User{ID: 1, Username: "user1"}))
	assert.Equal(t, "user:user1", UserKeyFunc(authed))

	backend := req.WithContext(rbac.WithBackend(req.Context()))
	assert.Equal(t, "backend", UserKeyFunc(backend))
}

func TestClientIPTrustedProxies(t *testing.T) {
	resolver, err := NewClientIP([]string{"127.0.0.1", "10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		expectedKey   string
	}{
		{"behind proxy", "127.0.0.1:12345", "203.0.113.1", "203.0.113.1"},
		{"proxy chain", "127.0.0.1:12345", "203.0.113.1, 10.0.0.1", "203.0.113.1"},
		{"spoofed first hop", "127.0.0.1:12345", "198.51.100.7, 203.0.113.1", "203.0.113.1"},
		{"untrusted peer", "192.168.1.1:12345", "203.0.113.1", "192.168.1.1"},
		{"proxy without header", "10.1.2.3:12345", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			assert.Equal(t, tt.expectedKey, resolver.Resolve(req))
		})
	}

	_, err = NewClientIP([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = NewClientIP([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}

func TestRotatingForwardedForDoesNotBypassLimit(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	handler := limiter.Middleware(UserKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var codes []int
	for _, hop := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/coprs", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", hop)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
