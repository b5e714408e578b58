package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	l := NewClientLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	clock := time.Unix(100, 0)
	l.now = func() time.Time { return clock }
	rejected := 0
	h := RateLimit(l, func() { rejected++ })(okHandler)

	do := func(path, addr string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/v1/search", "10.0.0.1:5002"))
	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.2:5000"))
	assert.Equal(t, http.StatusOK, do("/health/ready", "10.0.0.1:5003"))
	assert.Equal(t, 1, rejected)

	clock = clock.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.1:5004"))

	clock = clock.Add(time.Hour)
	assert.Equal(t, 2, l.Sweep())
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	assert.Equal(t, "192.168.1.1", clientKey(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientKey(req))
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.Write([]byte("late"))
	})
	rec := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.NotContains(t, rec.Body.String(), "late")

	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mode", "method1")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("done"))
	})
	rec = httptest.NewRecorder()
	Timeout(time.Second)(fast).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
	assert.Equal(t, "method1", rec.Header().Get("X-Mode"))
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig())(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://herbarium.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://herbarium.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsAndRouteLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := Metrics(m)(okHandler)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/search?q=rose", nil))

	assert.Equal(t, "/api/v1/search", routeLabel("/api/v1/search"))
	assert.Equal(t, "/api/v1/search/lsa", routeLabel("/api/v1/search/lsa"))
	assert.Equal(t, "/health/live", routeLabel("/health/live"))
	assert.Equal(t, "other", routeLabel("/wp-admin/login.php"))

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/v1/search",status="200"} 1`)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler, mw("outer"), mw("inner")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}
