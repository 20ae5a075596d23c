package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"boardflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type countingDrops struct {
	mu sync.Mutex
	n  map[string]int
}

func (d *countingDrops) IncRateLimitDrop(prefix string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == nil {
		d.n = map[string]int{}
	}
	d.n[prefix]++
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, method, remote string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, "/test", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	r := newRouter(RateLimitMiddleware(config.SecurityConfig{}, nil))
	for i := 0; i < 100; i++ {
		assert.Equal(t, http.StatusOK, hit(r, http.MethodGet, "10.0.0.1:1000", nil).Code)
	}
}

func TestRateLimitMiddleware_BurstThenReject(t *testing.T) {
	drops := &countingDrops{}
	cfg := config.SecurityConfig{RateLimiting: config.RateLimitingConfig{
		Enabled: true, RequestsPerMinute: 1, Burst: 3,
	}}
	r := newRouter(RateLimitMiddleware(cfg, drops))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, http.MethodGet, "10.0.0.1:1000", nil).Code, "request %d", i)
	}
	w := hit(r, http.MethodGet, "10.0.0.1:1000", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Equal(t, 1, drops.n["global"])

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, hit(r, http.MethodGet, "10.0.0.2:1000", nil).Code)
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	r := newRouter(CORSMiddleware(config.GetDefaultConfig().Security.CORS))

	w := hit(r, http.MethodGet, "10.0.0.1:1000", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	pre := hit(r, http.MethodOptions, "10.0.0.1:1000", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, pre.Code)
}

func TestCORSMiddleware_ExplicitOrigins(t *testing.T) {
	r := newRouter(CORSMiddleware(config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://ok.example.com"},
		AllowedMethods: []string{"GET"},
	}))

	ok := hit(r, http.MethodGet, "10.0.0.1:1000", map[string]string{"Origin": "https://ok.example.com"})
	assert.Equal(t, "https://ok.example.com", ok.Header().Get("Access-Control-Allow-Origin"))

	other := hit(r, http.MethodGet, "10.0.0.1:1000", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, other.Header().Get("Access-Control-Allow-Origin"))
}
