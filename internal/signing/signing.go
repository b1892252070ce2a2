// Package signing implements a minimal HMAC helper that authenticates machine
// trigger calls (cron jobs, the CLI) against the HTTP API. HMAC is easy in Go
// thanks to the standard library crypto packages.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Header names carrying the signature.
const (
	HeaderExpires   = "X-Schoolpost-Expires"
	HeaderSignature = "X-Schoolpost-Signature"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for a request target ("POST /scrape")
// valid until expiresUnix.
func (s *Signer) Sign(target string, expiresUnix int64) string {
	// hmac.New accepts a hash constructor (sha256.New) plus the secret key.
	mac := hmac.New(sha256.New, s.secret)
	// fmt.Sprintf builds the canonical payload string, ensuring consistent
	// ordering of values.
	payload := fmt.Sprintf("%s:%d", target, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one and rejects
// expired signatures.
func (s *Signer) Validate(target, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	expected := s.Sign(target, exp)
	// hmac.Equal performs constant-time comparison.
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignRequest attaches signature headers valid for ttl.
func (s *Signer) SignRequest(req *http.Request, ttl time.Duration) {
	exp := s.now().Add(ttl).Unix()
	req.Header.Set(HeaderExpires, strconv.FormatInt(exp, 10))
	req.Header.Set(HeaderSignature, s.Sign(Target(req), exp))
}

// Middleware rejects requests without a valid signature.
func (s *Signer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Validate(Target(r), r.Header.Get(HeaderExpires), r.Header.Get(HeaderSignature)) {
			http.Error(w, "invalid or expired signature", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Target is the signed part of a request: method and path.
func Target(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
