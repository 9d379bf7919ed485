// Package session carries authenticated sessions in a signed HTTP cookie.
//
// The cookie holds an HS256 JWT whose subject is the user id. No server side
// session table is needed; an optional Revoker lets logout and account
// deletion invalidate a token before it expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLen = 32

// Principal is the identity a session is issued for
type Principal struct {
	UserID      string
	Email       string
	Phone       string
	DisplayName string
}

// Session is a validated session read from a request
type Session struct {
	ID          string    `json:"-"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Config controls token signing and the cookie attributes
type Config struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	Issuer     string
	Secure     bool
	SameSite   http.SameSite
}

// Manager issues, reads and clears session cookies
type Manager struct {
	secret   []byte
	name     string
	ttl      time.Duration
	issuer   string
	secure   bool
	sameSite http.SameSite
	revoker  Revoker
	now      func() time.Time
}

// Option customizes a Manager
type Option func(*Manager)

// WithRevoker enables revocation checks on Read
func WithRevoker(r Revoker) Option {
	return func(m *Manager) {
		if r != nil {
			m.revoker = r
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

type claims struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c claims) session() *Session {
	s := &Session{
		ID:          c.ID,
		UserID:      c.Subject,
		Email:       c.Email,
		Phone:       c.Phone,
		DisplayName: c.DisplayName,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// NewManager validates cfg and builds a Manager
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "ht_session"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}

	m := &Manager{
		secret:   []byte(cfg.Secret),
		name:     cfg.CookieName,
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		secure:   cfg.Secure,
		sameSite: cfg.SameSite,
		revoker:  noopRevoker{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CookieName returns the name of the session cookie
func (m *Manager) CookieName() string {
	return m.name
}

// Sign creates a signed token for p without touching any response
func (m *Manager) Sign(p Principal) (token string, expiresAt time.Time, err error) {
	token, c, err := m.sign(p)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, c.ExpiresAt.Time, nil
}

func (m *Manager) sign(p Principal) (string, claims, error) {
	if p.UserID == "" {
		return "", claims{}, errors.New("session principal has no user id")
	}

	now := m.now().UTC().Truncate(time.Second)
	c := claims{
		Email:       p.Email,
		Phone:       p.Phone,
		DisplayName: p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", claims{}, fmt.Errorf("sign session: %w", err)
	}
	return token, c, nil
}

// SetCookie writes a previously signed token as the session cookie
func (m *Manager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(m.now()).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	})
}

// Issue signs a session for p and writes it as a cookie
func (m *Manager) Issue(w http.ResponseWriter, p Principal) (*Session, error) {
	token, c, err := m.sign(p)
	if err != nil {
		return nil, err
	}
	m.SetCookie(w, token, c.ExpiresAt.Time)
	return c.session(), nil
}

// Read returns the session carried by r, or nil when the cookie is absent,
// malformed, expired or revoked.
func (m *Manager) Read(r *http.Request) *Session {
	cookie, err := r.Cookie(m.name)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return m.Parse(r.Context(), cookie.Value)
}

// Parse validates a raw token. It returns nil for any invalid token.
func (m *Manager) Parse(ctx context.Context, token string) *Session {
	var c claims
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid || c.Subject == "" || c.ID == "" {
		return nil
	}

	revoked, err := m.revoker.IsRevoked(ctx, c.ID)
	if err != nil || revoked {
		return nil
	}

	return c.session()
}

// Revoke invalidates s until its natural expiry
func (m *Manager) Revoke(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.revoker.Revoke(ctx, s.ID, ttl)
}

// Clear expires the session cookie. It is safe to call for requests that
// carry no session.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	})
}
