package sdk

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrNoCredentials is returned by a CredentialStore that holds nothing.
var ErrNoCredentials = errors.New("no stored credentials")

// Cookie is the persisted form of one session cookie set by the server.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Credentials is the durable credential: the cookie-backed session marker issued by the
// server. It says nothing about who is logged in; the session is always re-derived by a probe.
type Credentials struct {
	ServerURL string    `json:"server_url"`
	Cookies   []Cookie  `json:"cookies"`
	SavedAt   time.Time `json:"saved_at"`
}

// IsExpired reports whether every cookie with an expiry has passed it.
// Session cookies (no expiry) never expire client-side; the server decides.
func (c *Credentials) IsExpired() bool {
	if len(c.Cookies) == 0 {
		return true
	}
	now := time.Now()
	for _, ck := range c.Cookies {
		if ck.Expires.IsZero() || ck.Expires.After(now) {
			return false
		}
	}
	return true
}

// CredentialStore persists the durable credential across process restarts.
// Implementations must replace or delete the whole record, never patch it.
type CredentialStore interface {
	SaveCredentials(credentials *Credentials) error
	// LoadCredentials returns ErrNoCredentials when nothing is stored.
	LoadCredentials() (*Credentials, error)
	DeleteCredentials() error
}

// MemoryStore is a process-local CredentialStore.
type MemoryStore struct {
	mu    sync.Mutex
	creds *Credentials
}

var _ CredentialStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveCredentials(credentials *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *credentials
	clone.Cookies = append([]Cookie(nil), credentials.Cookies...)
	s.creds = &clone
	return nil
}

func (s *MemoryStore) LoadCredentials() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, ErrNoCredentials
	}
	clone := *s.creds
	clone.Cookies = append([]Cookie(nil), s.creds.Cookies...)
	return &clone, nil
}

func (s *MemoryStore) DeleteCredentials() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

func cookieFromHTTP(c *http.Cookie) Cookie {
	expires := c.Expires
	if c.MaxAge > 0 {
		expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
	}
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

func (c Cookie) toHTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}
