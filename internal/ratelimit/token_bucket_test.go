package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(10, 5)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on request %d within burst", i+1)
		}
	}
}

func TestBlockWhenDepleted(t *testing.T) {
	l := New(10, 2)
	l.Allow()
	l.Allow()
	if l.Allow() {
		t.Fatal("expected rate limit after burst exhausted")
	}
}

func TestRefillOverTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(2, 1, func() time.Time { return now })
	l.Allow()
	if l.Allow() {
		t.Fatal("expected limit before refill")
	}
	now = now.Add(500 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("expected allow after refill")
	}
}

func TestStoreCreatesPerKeyLimiters(t *testing.T) {
	s := NewStore(100, 10)
	for i := 0; i < 10; i++ {
		if !s.Allow("key-a") {
			t.Fatalf("expected allow on key-a request %d", i+1)
		}
	}
	if !s.Allow("key-b") {
		t.Fatal("expected allow on key-b (fresh limiter)")
	}
}

func TestMiddleware(t *testing.T) {
	s := NewStore(0.001, 1)
	h := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/translate", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := send(http.MethodPost, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := send(http.MethodPost, "10.0.0.1:5678")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Rate limit exceeded") {
		t.Errorf("body = %s", w.Body.String())
	}
	if w := send(http.MethodOptions, "10.0.0.1:5678"); w.Code != http.StatusOK {
		t.Errorf("OPTIONS must bypass the limiter, status = %d", w.Code)
	}
	if w := send(http.MethodPost, "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Errorf("other client status = %d", w.Code)
	}
}
