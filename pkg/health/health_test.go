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

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRun_AllUp(t *testing.T) {
	c := NewChecker()
	c.Register("db", up)
	c.Register("cache", up)

	report := c.Run(context.Background())
	assert.Equal(t, StatusUp, report.Status)
	assert.Len(t, report.Components, 2)
	assert.NotEmpty(t, report.Components["db"].Latency)
}

func TestRun_WorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("db", up)
	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["cache"].Message)

	c.Register("db", PingCheck(func(context.Context) error { return errors.New("gone") }, StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestPingCheck_NilPing(t *testing.T) {
	got := PingCheck(nil, StatusDown)(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "not configured", got.Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("db", up)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUp, report.Status)

	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("timeout") }, StatusDegraded))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
