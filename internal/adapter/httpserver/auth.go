package httpserver

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/craftlab/cardsmith/internal/domain"
)

// Argon2Params tunes password hashing. Defaults follow current OWASP guidance.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns the production hashing parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

const argon2Prefix = "argon2id$"

// HashPassword produces an encoded argon2id hash:
// argon2id$iterations$memory$parallelism$salt$hash (salt and hash base64url).
func HashPassword(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("op=auth.hash: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("%s%d$%d$%d$%s$%s",
		argon2Prefix, p.Iterations, p.Memory, p.Parallelism,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against an encoded argon2id hash.
func VerifyPassword(password, encoded string) bool {
	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return false
	}
	parts := strings.Split(rest, "$")
	if len(parts) != 5 {
		return false
	}
	iterations, err1 := strconv.ParseUint(parts[0], 10, 32)
	memory, err2 := strconv.ParseUint(parts[1], 10, 32)
	parallelism, err3 := strconv.ParseUint(parts[2], 10, 8)
	salt, err4 := base64.RawURLEncoding.DecodeString(parts[3])
	want, err5 := base64.RawURLEncoding.DecodeString(parts[4])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, uint32(iterations), uint32(memory), uint8(parallelism), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// VerifyCredential accepts either an encoded argon2id hash or, for local
// development configs, a plain secret compared in constant time.
func VerifyCredential(password, configured string) bool {
	if strings.HasPrefix(configured, argon2Prefix) {
		return VerifyPassword(password, configured)
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(configured)) == 1
}

// TokenManager issues and validates opaque bearer tokens bound to a session.
// A token is base64url(sessionID:issued:expires) + "." + base64url(HMAC-SHA256).
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for the session and returns it with its expiry.
func (m *TokenManager) Issue(sessionID string) (string, time.Time) {
	issued := m.now().UTC()
	expires := issued.Add(m.ttl)
	payload := fmt.Sprintf("%s:%d:%d", sessionID, issued.Unix(), expires.Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + m.sign(payload), expires
}

// Validate checks signature and expiry and returns the embedded session id.
func (m *TokenManager) Validate(token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", fmt.Errorf("op=auth.validate: malformed token: %w", domain.ErrUnauthenticated)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("op=auth.validate: decode payload: %w", domain.ErrUnauthenticated)
	}
	payload := string(raw)
	if subtle.ConstantTimeCompare([]byte(m.sign(payload)), []byte(sig)) != 1 {
		return "", fmt.Errorf("op=auth.validate: bad signature: %w", domain.ErrUnauthenticated)
	}
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("op=auth.validate: malformed payload: %w", domain.ErrUnauthenticated)
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("op=auth.validate: malformed expiry: %w", domain.ErrUnauthenticated)
	}
	if m.now().UTC().Unix() >= expires {
		return "", fmt.Errorf("op=auth.validate: %w", domain.ErrTokenExpired)
	}
	return parts[0], nil
}

func (m *TokenManager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

type sessionKey struct{}

// SessionFromContext returns the authenticated session id, if any.
func SessionFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(sessionKey{}).(string)
	return s, ok
}

// AuthRequired rejects requests without a valid bearer token and stores the
// session id in the request context.
func (s *Server) AuthRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthenticated), nil)
			return
		}
		sessionID, err := s.Tokens.Validate(token)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
