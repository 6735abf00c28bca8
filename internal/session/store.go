package session

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Cookie is a single name/value pair plus the attributes the gateway controls.
type Cookie struct {
	Name     string
	Value    string
	MaxAge   int
	HTTPOnly bool
}

// Store is the per-request cookie jar the token store writes through.
type Store interface {
	Get(name string) (string, bool)
	Set(cookie Cookie)
	Delete(name string)
}

// CookieOptions are the attributes shared by every cookie the gateway issues.
type CookieOptions struct {
	Path   string
	Domain string
	Secure bool
}

// CookieStore reads request cookies and writes Set-Cookie headers on a gin context.
type CookieStore struct {
	c    *gin.Context
	opts CookieOptions
}

var _ Store = (*CookieStore)(nil)

// NewCookieStore binds a Store to the current request.
func NewCookieStore(c *gin.Context, opts CookieOptions) *CookieStore {
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &CookieStore{c: c, opts: opts}
}

func (s *CookieStore) Get(name string) (string, bool) {
	value, err := s.c.Cookie(name)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (s *CookieStore) Set(cookie Cookie) {
	s.c.SetSameSite(http.SameSiteLaxMode)
	s.c.SetCookie(cookie.Name, cookie.Value, cookie.MaxAge, s.opts.Path, s.opts.Domain, s.opts.Secure, cookie.HTTPOnly)
}

func (s *CookieStore) Delete(name string) {
	s.c.SetSameSite(http.SameSiteLaxMode)
	s.c.SetCookie(name, "", -1, s.opts.Path, s.opts.Domain, s.opts.Secure, true)
}

// MemoryStore keeps cookies in a map. Used by tests and the CLI.
type MemoryStore struct {
	mu      sync.RWMutex
	cookies map[string]Cookie
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cookies: map[string]Cookie{}}
}

func (s *MemoryStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cookie, ok := s.cookies[name]
	if !ok || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s *MemoryStore) Set(cookie Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[cookie.Name] = cookie
}

func (s *MemoryStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, name)
}

// Cookie returns the stored cookie with its attributes.
func (s *MemoryStore) Cookie(name string) (Cookie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cookie, ok := s.cookies[name]
	return cookie, ok
}

// Len reports how many cookies are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cookies)
}
