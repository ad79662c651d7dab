package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.0.0")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("postgres", func(context.Context) error { return nil })
	c.AddSoftCheck("queue_cleanup", func(context.Context) error { return errors.New("3 consecutive sweep failures") })
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "soft failures must not unready the service")
	require.Contains(t, status.Checks, "queue_cleanup")
	assert.False(t, status.Checks["queue_cleanup"].Critical)
	assert.Equal(t, "3 consecutive sweep failures", status.Checks["queue_cleanup"].Message)

	c.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	status = c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: queue_cleanup, redis", status.Message)

	c.RemoveCheck("redis")
	c.RemoveCheck("queue_cleanup")
	status = c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "All checks passed", status.Message)
	assert.Equal(t, "1.0.0", status.Version)
}

func TestCheckTimeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestReportDetails(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.AddCheck("redis", func(context.Context) error { return nil })
	c.AddReport("history_breaker", func(context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"state": "open", "total_failures": 3}, errors.New("breaker open")
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "reports never gate readiness")

	got := status.Checks["history_breaker"]
	assert.False(t, got.Critical)
	assert.Equal(t, "breaker open", got.Message)
	assert.Equal(t, "open", got.Details["state"])
	assert.Equal(t, 3, got.Details["total_failures"])
	assert.Nil(t, status.Checks["redis"].Details)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error  { return f(ctx) }
func (f pingFunc) Check(ctx context.Context) error { return f(ctx) }

func TestAdapters(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("down") })
	assert.EqualError(t, NewPingCheck(down)(context.Background()), "down")
	assert.EqualError(t, NewServiceCheck(down)(context.Background()), "down")
}

func TestMiddleware(t *testing.T) {
	var deadline bool
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
		w.WriteHeader(http.StatusNoContent)
	})
	h := SecurityHeadersMiddleware(NoCacheMiddleware(DeadlineMiddleware(time.Second)(RequestSizeLimitMiddleware(8)(final))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, deadline)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 64
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}
