package middleware

import (
	"crypto/sha256"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	maxKeyFailures = 10
	keyFailWindow  = time.Minute
)

// AccessKeyFromRequest returns the bearer token, or the apikey header when no
// Authorization header is present.
func AccessKeyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.Header.Get("apikey")
}

// RequireAccessKey rejects requests whose key matches none of the bcrypt
// hashes returned by hashes. An empty list lets every request through.
// Failed attempts are counted per client IP and, once over the limit,
// answered with 429 without checking the key at all. A key that matched once
// skips bcrypt while its hash stays configured.
func RequireAccessKey(hashes func() []string, limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	keys := newKeyCache()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed := hashes()
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := RealIP(r)
			if limiter.Exceeded("key:"+ip, maxKeyFailures) {
				writeError(w, http.StatusTooManyRequests, "too many failed attempts")
				return
			}

			key := AccessKeyFromRequest(r)
			if key == "" || !keys.match(allowed, key) {
				limiter.Allow("key:"+ip, maxKeyFailures, keyFailWindow)
				logger.Warn("rejected access key", "remote", ip, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid access key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// keyCache remembers which configured hash each verified key matched, keyed
// by the key's SHA-256 digest. Only successful matches are stored.
type keyCache struct {
	mu       sync.Mutex
	verified map[[sha256.Size]byte]string
	compare  func(hash, key []byte) error
}

func newKeyCache() *keyCache {
	return &keyCache{
		verified: make(map[[sha256.Size]byte]string),
		compare:  bcrypt.CompareHashAndPassword,
	}
}

func (c *keyCache) match(hashes []string, key string) bool {
	sum := sha256.Sum256([]byte(key))

	c.mu.Lock()
	h, ok := c.verified[sum]
	c.mu.Unlock()
	if ok {
		if slices.Contains(hashes, h) {
			return true
		}
		c.mu.Lock()
		delete(c.verified, sum)
		c.mu.Unlock()
	}

	for _, h := range hashes {
		if c.compare([]byte(h), []byte(key)) == nil {
			c.mu.Lock()
			c.verified[sum] = h
			c.mu.Unlock()
			return true
		}
	}
	return false
}

// HashAccessKey returns the bcrypt hash to put in the server config.
func HashAccessKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
