package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"xlsmconv/internal/convert"
)

// ErrNoSigningCredential indicates no key is available to mint signed URLs.
// Publishing may still have succeeded when this is returned.
var ErrNoSigningCredential = errors.New("no signing credential configured")

// Memory is an in-process output store. It backs tests and the CLI dry-run
// path with the same Put/sign contract the Azure store provides: HMAC-signed
// URLs with an expiry, verifiable without network access.
type Memory struct {
	mu         sync.RWMutex
	objects    map[string][]byte
	baseURL    string
	signingKey []byte
	now        func() time.Time
}

// NewMemory builds an in-memory store. A nil or empty signingKey disables
// link issuance, which is how tests exercise the published-but-unsigned
// failure path.
func NewMemory(baseURL string, signingKey []byte) *Memory {
	return &Memory{
		objects:    make(map[string][]byte),
		baseURL:    baseURL,
		signingKey: signingKey,
		now:        time.Now,
	}
}

// WithClock pins the store clock. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Put stores a copy of data under name, overwriting any prior object.
func (m *Memory) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

// SignedReadURL mints an HMAC-signed read URL expiring at now + ttl.
func (m *Memory) SignedReadURL(_ context.Context, name string, ttl time.Duration) (convert.SignedLink, error) {
	if len(m.signingKey) == 0 {
		return convert.SignedLink{}, ErrNoSigningCredential
	}
	expires := m.now().UTC().Add(ttl)
	sig := m.sign(name, expires.Unix())
	u := fmt.Sprintf("%s/%s?se=%d&sig=%s", m.baseURL, escapePath(name), expires.Unix(), sig)
	return convert.SignedLink{URL: u, ExpiresAt: expires}, nil
}

// VerifyURL reports whether a signed URL minted by this store grants access
// to name at instant at.
func (m *Memory) VerifyURL(rawURL, name string, at time.Time) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	se, err := strconv.ParseInt(q.Get("se"), 10, 64)
	if err != nil {
		return false
	}
	if at.UTC().Unix() > se {
		return false
	}
	return hmac.Equal([]byte(q.Get("sig")), []byte(m.sign(name, se)))
}

// Get returns the stored bytes for name.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	return data, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *Memory) sign(name string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, m.signingKey)
	fmt.Fprintf(mac, "%s\n%d", name, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

func escapePath(name string) string {
	return (&url.URL{Path: name}).EscapedPath()
}
