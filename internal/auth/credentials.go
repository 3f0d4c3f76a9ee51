// Package auth hashes password credentials and issues stateless bearer tokens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes        = 16
	derivedKeyLength = 32
	// PasswordIterations is the PBKDF2 work factor applied to every password.
	PasswordIterations = 100_000

	// DefaultTokenTTL applies to ordinary logins.
	DefaultTokenTTL = 24 * time.Hour
	// RememberMeTokenTTL applies when the caller asks to stay signed in.
	RememberMeTokenTTL = 30 * 24 * time.Hour
)

var (
	// ErrTokenExpired is returned when a token is well formed and signed but past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other parse or signature failure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSecretRequired is returned at startup when no signing secret is configured.
	ErrSecretRequired = errors.New("token signing secret is required")
)

// Claims carries the subject of a bearer token alongside the registered claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager hashes passwords and signs tokens with a process-wide secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source used for issuing and checking tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager builds a Manager. An empty secret is accepted only in development
// mode, where a random per-process secret is generated instead.
func NewManager(secret string, devMode bool, opts ...Option) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	key := []byte(secret)
	if secret == "" {
		if !devMode {
			return nil, ErrSecretRequired
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate dev secret: %w", err)
		}
	}

	m := &Manager{secret: key, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// HashPassword returns "<salt>:<hash>" for the plaintext.
func (m *Manager) HashPassword(plaintext string) string {
	raw := make([]byte, saltBytes)
	// crypto/rand.Read does not fail on supported platforms.
	_, _ = rand.Read(raw)
	salt := hex.EncodeToString(raw)
	return salt + ":" + hex.EncodeToString(derive(plaintext, salt))
}

// VerifyPassword reports whether plaintext matches a value produced by HashPassword.
// Malformed stored values never match.
func (m *Manager) VerifyPassword(plaintext, stored string) bool {
	salt, want, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || want == "" || strings.Contains(want, ":") {
		return false
	}
	expected, err := hex.DecodeString(want)
	if err != nil || len(expected) != derivedKeyLength {
		return false
	}
	return subtle.ConstantTimeCompare(derive(plaintext, salt), expected) == 1
}

func derive(plaintext, salt string) []byte {
	return pbkdf2.Key([]byte(plaintext), []byte(salt), PasswordIterations, derivedKeyLength, sha256.New)
}

// IssueToken signs a token for subject valid for ttl.
func (m *Manager) IssueToken(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken returns the token subject, ErrTokenExpired or ErrTokenInvalid.
func (m *Manager) VerifyToken(tokenString string) (string, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
