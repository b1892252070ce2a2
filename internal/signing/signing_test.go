package signing

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestSigner(t *testing.T) {
	// testing.T is provided by Go's stdlib test framework; helper methods like
	// Fatalf fail the test immediately.
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	sig := s.Sign("POST /scrape", 1700000060)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate("POST /scrape", "1700000060", sig) {
		t.Fatalf("expected signature to validate")
	}
	// Negative cases ensure Validate is strict about every parameter.
	if s.Validate("POST /generate", "1700000060", sig) {
		t.Fatalf("expected validation to fail for wrong target")
	}
	if s.Validate("POST /scrape", "1700000061", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if s.Validate("POST /scrape", "soon", sig) {
		t.Fatalf("expected validation to fail for malformed expiry")
	}
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return time.Unix(1700000100, 0) }
	exp := int64(1700000060)
	if s.Validate("POST /scrape", strconv.FormatInt(exp, 10), s.Sign("POST /scrape", exp)) {
		t.Fatalf("expected expired signature to fail")
	}
}

func TestMiddleware(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	unsigned := httptest.NewRequest(http.MethodPost, "/scrape", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, unsigned)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned request: got %d", rec.Code)
	}

	signed := httptest.NewRequest(http.MethodPost, "/scrape", nil)
	s.SignRequest(signed, time.Minute)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signed)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signed request: got %d", rec.Code)
	}
}
