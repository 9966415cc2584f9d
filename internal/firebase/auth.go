package firebase

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenSourceClosed is returned by Token after Close.
var ErrTokenSourceClosed = errors.New("token source closed")

// TokenSource issues database secret tokens: HS256 JWTs carrying
// {"v": 0, "iat": <unix>, "d": <auth data>} signed with the secret.
//
// A token is generated lazily on first use and regenerated once it is older
// than the refresh interval. With refresh disabled the first token is kept
// until Invalidate or Close.
type TokenSource struct {
	secret  []byte
	data    map[string]interface{}
	ttl     time.Duration
	refresh bool
	now     func() time.Time

	onRefresh func(issuedAt time.Time)

	mu     sync.Mutex
	token  string
	issued time.Time
	closed bool
}

// NewTokenSource returns a source for secret. An empty secret yields empty
// tokens, which disables authentication.
func NewTokenSource(secret string, data map[string]interface{}, ttl time.Duration, refresh bool) *TokenSource {
	return &TokenSource{
		secret:  []byte(secret),
		data:    data,
		ttl:     ttl,
		refresh: refresh,
		now:     time.Now,
	}
}

// Token returns the current token, generating a new one when none is held
// or the held one has expired.
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrTokenSourceClosed
	}
	if len(s.secret) == 0 {
		return "", nil
	}

	now := s.now()
	if s.token != "" && !(s.refresh && now.Sub(s.issued) >= s.ttl) {
		return s.token, nil
	}

	claims := jwt.MapClaims{
		"v":   0,
		"iat": now.Unix(),
		"d":   s.data,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.token = signed
	s.issued = now
	if s.onRefresh != nil {
		s.onRefresh(now)
	}
	return s.token, nil
}

// Invalidate drops the held token so the next call to Token signs a new one.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.issued = time.Time{}
}

// Close drops the held token and refuses to issue new ones.
func (s *TokenSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.issued = time.Time{}
	s.closed = true
}
