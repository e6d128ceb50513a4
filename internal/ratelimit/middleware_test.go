package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/ratelimit"
)

func TestMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim, err := ratelimit.New(rdb, 2)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	var served int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { served++ })
	h := ratelimit.Middleware(lim, zerolog.Nop())(next)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/p-1", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d code = %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/p-1", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request code = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	if served != 2 {
		t.Fatalf("served = %d", served)
	}
}

func TestMiddlewareSeparatesClients(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim, err := ratelimit.New(rdb, 1)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := ratelimit.Middleware(lim, zerolog.Nop())(next)

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/p-1", nil)
		req.RemoteAddr = addr
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("client %s code = %d", addr, w.Code)
		}
	}
}
