package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stagehub-np/backend-stagehub/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (c stubChecker) PingDB(context.Context, time.Duration) error    { return c.dbErr }
func (c stubChecker) PingRedis(context.Context, time.Duration) error { return c.redisErr }

func TestLiveAlwaysOK(t *testing.T) {
	h := health.Handler{}
	w := httptest.NewRecorder()
	h.Live(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestReadyAllHealthy(t *testing.T) {
	h := health.Handler{Checker: stubChecker{}}
	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"db":"ok"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestReadyDegraded(t *testing.T) {
	h := health.Handler{Checker: stubChecker{dbErr: errors.New("connection refused")}}
	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestReadyNoChecker(t *testing.T) {
	h := health.Handler{}
	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", w.Code)
	}
}
