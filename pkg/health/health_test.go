package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(s Status, msg string) Check {
	return func(context.Context) ComponentHealth { return ComponentHealth{Status: s, Message: msg} }
}

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("resources", static(StatusUp, ""))
	c.Register("lsa", static(StatusDegraded, "stale"))
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("index", static(StatusDown, "missing"))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 3)
	assert.Equal(t, []string{"index", "lsa", "resources"}, c.Names())
}

func TestPingCheck(t *testing.T) {
	up := PingCheck(func(context.Context) error { return nil })(context.Background())
	assert.Equal(t, StatusUp, up.Status)

	down := PingCheck(func(context.Context) error { return errors.New("refused") })(context.Background())
	assert.Equal(t, StatusDegraded, down.Status)
	assert.Equal(t, "refused", down.Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", static(StatusDegraded, "redis unreachable"))

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("resources", static(StatusDown, "not loaded"))
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
