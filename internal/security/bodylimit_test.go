package security_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stagehub-np/backend-stagehub/internal/security"
)

func TestBodyLimitAllowsSmallBody(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
	})
	h := security.BodyLimit{Max: 64}.Middleware(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ok":true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if got != `{"ok":true}` {
		t.Fatalf("body = %q", got)
	}
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with oversized body")
	})
	h := security.BodyLimit{Max: 8}.Middleware(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestHeadersApplied(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := security.Headers{Enable: true}.Middleware(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("nosniff header missing")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("frame options header missing")
	}
}
