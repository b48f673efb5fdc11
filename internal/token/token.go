// Package token issues and checks the one-shot tokens mailed for email
// verification.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "uniauth"
	audience        = "email-verification"
	DefaultLifetime = 3 * 24 * time.Hour
)

var ErrNoKey = errors.New("token: signing key is empty")

// Subject is the state a token is bound to. Any change to it, most notably
// Verified flipping to true, invalidates every token issued before.
type Subject struct {
	ID       uuid.UUID
	Verified bool
	Created  time.Time // compared at second precision
}

type Config struct {
	Issuer     string
	Lifetime   time.Duration
	SigningKey []byte // HS256 secret
}

type claims struct {
	State string `json:"st"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrNoKey
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	return &Issuer{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// WithClock returns a copy reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *Issuer) Issue(s Subject) (string, error) {
	now := i.now()
	c := claims{
		State: i.state(s),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   s.ID.String(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.Lifetime)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.cfg.SigningKey)
}

// Check reports whether tok was issued for s in its current state and has
// not expired.
func (i *Issuer) Check(s Subject, tok string) bool {
	c := &claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithSubject(s.ID.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	parsed, err := parser.ParseWithClaims(tok, c, func(*jwt.Token) (interface{}, error) {
		return i.cfg.SigningKey, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	return hmac.Equal([]byte(c.State), []byte(i.state(s)))
}

func (i *Issuer) state(s Subject) string {
	mac := hmac.New(sha256.New, i.cfg.SigningKey)
	mac.Write(s.ID[:])
	mac.Write([]byte(strconv.FormatBool(s.Verified)))
	mac.Write([]byte(strconv.FormatInt(s.Created.Unix(), 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
