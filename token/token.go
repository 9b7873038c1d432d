// Package token issues and verifies stateless session tokens.
//
// A token is base64(payload) + "." + base64(signature), where payload is the
// JSON encoding of {email, exp} and signature is HMAC-SHA-256 over those
// payload bytes keyed by a shared secret. Nothing is stored server side, so
// a token stays valid until it expires; there is no revocation.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 7 * 24 * time.Hour

const separator = "."

// ErrInvalid is returned by Verify for any token that must be rejected.
var ErrInvalid = errors.New("token: invalid or expired")

// Payload is the signed content of a token. Exp is Unix milliseconds.
type Payload struct {
	Email string `json:"email"`
	Exp   int64  `json:"exp"`
}

// Expires returns Exp as a time.
func (p Payload) Expires() time.Time {
	return time.UnixMilli(p.Exp)
}

// Service signs and checks tokens with one secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a Service signing with secret. A non-positive ttl
// means DefaultTTL.
func NewService(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token: secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue returns a token for email. It does not consult any allow-list;
// callers decide who may receive a token.
func (s *Service) Issue(email string) (string, error) {
	data, err := json.Marshal(Payload{
		Email: email,
		Exp:   s.now().Add(s.ttl).UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("token: encode payload: %w", err)
	}
	enc := base64.StdEncoding
	return enc.EncodeToString(data) + separator + enc.EncodeToString(s.sign(data)), nil
}

// Verify returns the payload of a well-formed, correctly signed and
// unexpired token. Every other input yields ErrInvalid.
func (s *Service) Verify(tok string) (Payload, error) {
	payloadPart, sigPart, ok := strings.Cut(tok, separator)
	if !ok {
		return Payload{}, ErrInvalid
	}
	// Strict decoding rejects non-zero padding bits, so every distinct
	// encoding maps to distinct bytes.
	dec := base64.StdEncoding.Strict()
	data, err := dec.DecodeString(payloadPart)
	if err != nil {
		return Payload{}, ErrInvalid
	}
	sig, err := dec.DecodeString(sigPart)
	if err != nil {
		return Payload{}, ErrInvalid
	}
	if !hmac.Equal(sig, s.sign(data)) {
		return Payload{}, ErrInvalid
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, ErrInvalid
	}
	if !s.now().Before(p.Expires()) {
		return Payload{}, ErrInvalid
	}
	return p, nil
}

func (s *Service) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return mac.Sum(nil)
}
