// Package token signs and verifies session credentials.
//
// A token is base64url(payload) "." base64url(HMAC-SHA256(payload)), with the
// payload a JSON object binding the session id, both agents, the task and the
// expiry in unix milliseconds. Tokens are bearer credentials and never appear
// in errors.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/agentdir/internal/domain"
)

// MinKeySize is the shortest accepted signing key in bytes.
const MinKeySize = 32

const maxTokenSize = 4096

var encoding = base64.RawURLEncoding.Strict()

// Claims is what a token binds.
type Claims struct {
	SessionID       string
	InitiatingAgent string
	TargetAgent     string
	Task            string
	ExpiresAt       time.Time
}

type payload struct {
	SessionID       string `json:"sid"`
	InitiatingAgent string `json:"ini"`
	TargetAgent     string `json:"tgt"`
	Task            string `json:"task"`
	ExpiresAt       int64  `json:"exp"`
}

// Issuer signs and verifies tokens under one key.
type Issuer struct {
	key []byte
	now func() time.Time
}

// NewIssuer returns an issuer for key. now defaults to time.Now.
func NewIssuer(key []byte, now func() time.Time) (*Issuer, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeySize, len(key))
	}
	if now == nil {
		now = time.Now
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Issuer{key: k, now: now}, nil
}

// GenerateKey returns a random signing key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, MinKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

// Sign returns the token for c. The expiry is kept at millisecond precision.
func (i *Issuer) Sign(c Claims) (string, error) {
	raw, err := json.Marshal(payload{
		SessionID:       c.SessionID,
		InitiatingAgent: c.InitiatingAgent,
		TargetAgent:     c.TargetAgent,
		Task:            c.Task,
		ExpiresAt:       c.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}
	body := encoding.EncodeToString(raw)
	return body + "." + encoding.EncodeToString(i.mac(body)), nil
}

// Verify recovers the claims of token. It fails with domain.ErrInvalidSignature
// for malformed or tampered tokens and domain.ErrTokenExpired once the expiry
// has passed.
func (i *Issuer) Verify(token string) (Claims, error) {
	c, err := i.Parse(token)
	if err != nil {
		return Claims{}, err
	}
	if i.now().After(c.ExpiresAt) {
		return c, domain.NewError(domain.CodeTokenExpired, "session token expired")
	}
	return c, nil
}

// Parse checks the signature of token without looking at its expiry.
func (i *Issuer) Parse(token string) (Claims, error) {
	invalid := domain.NewError(domain.CodeInvalidSignature, "session token is malformed or has been tampered with")

	if token == "" || len(token) > maxTokenSize || !wellFormed(token) {
		return Claims{}, invalid
	}
	body, sig, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(sig, ".") {
		return Claims{}, invalid
	}
	gotMAC, err := encoding.DecodeString(sig)
	if err != nil {
		return Claims{}, invalid
	}
	if !hmac.Equal(gotMAC, i.mac(body)) {
		return Claims{}, invalid
	}
	raw, err := encoding.DecodeString(body)
	if err != nil {
		return Claims{}, invalid
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Claims{}, invalid
	}
	return Claims{
		SessionID:       p.SessionID,
		InitiatingAgent: p.InitiatingAgent,
		TargetAgent:     p.TargetAgent,
		Task:            p.Task,
		ExpiresAt:       time.UnixMilli(p.ExpiresAt).UTC(),
	}, nil
}

func (i *Issuer) mac(body string) []byte {
	h := hmac.New(sha256.New, i.key)
	h.Write([]byte(body))
	return h.Sum(nil)
}

// wellFormed rejects anything outside the base64url alphabet and the separator,
// including the line breaks the decoder would otherwise skip.
func wellFormed(token string) bool {
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// Matches reports whether c binds exactly the identity of s.
func (c Claims) Matches(s *domain.Session) bool {
	return c.SessionID == s.SessionID &&
		c.InitiatingAgent == s.InitiatingAgent &&
		c.TargetAgent == s.TargetAgent &&
		c.Task == s.Task &&
		c.ExpiresAt.UnixMilli() == s.ExpiresAt.UnixMilli()
}
