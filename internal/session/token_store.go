package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
	"github.com/smallbiznis/valora-sleep/internal/seal"
)

const (
	AccessTokenCookie   = "access_token"
	RefreshTokenCookie  = "refresh_token"
	AuthenticatedCookie = "authenticated"
	StateCookie         = "oauth_state"

	// RefreshTokenMaxAge is 30 days in seconds.
	RefreshTokenMaxAge = 30 * 24 * 60 * 60
)

// TokenStore is the typed view over the session cookies. Http-only values are
// sealed when the sealer carries a key; the readable flag never is.
type TokenStore struct {
	store    Store
	sealer   *seal.Sealer
	stateTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenStore wraps store. A nil sealer stores plain values.
func NewTokenStore(store Store, sealer *seal.Sealer, stateTTL time.Duration, logger *zap.Logger) *TokenStore {
	if sealer == nil {
		sealer = seal.NewSealer("")
	}
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &TokenStore{store: store, sealer: sealer, stateTTL: stateTTL, logger: logger, now: time.Now}
}

// SaveState remembers the CSRF state issued with the authorization URL.
func (t *TokenStore) SaveState(state string) error {
	return t.setSealed(StateCookie, state, int(t.stateTTL/time.Second))
}

// State returns the stored CSRF state, or "" when absent.
func (t *TokenStore) State() string {
	return t.getSealed(StateCookie)
}

// ClearState drops the CSRF state.
func (t *TokenStore) ClearState() {
	t.store.Delete(StateCookie)
}

// SaveTokens persists a token endpoint answer. The refresh token is only
// written when the provider issued one, so a refresh that omits it keeps the
// previous value.
func (t *TokenStore) SaveTokens(tokens domainoauth.TokenSet) (domainoauth.AuthSession, error) {
	maxAge := int(tokens.ExpiresIn)
	if err := t.setSealed(AccessTokenCookie, tokens.AccessToken, maxAge); err != nil {
		return domainoauth.AuthSession{}, err
	}
	t.store.Set(Cookie{Name: AuthenticatedCookie, Value: "true", MaxAge: maxAge})
	if tokens.RefreshToken != "" {
		if err := t.setSealed(RefreshTokenCookie, tokens.RefreshToken, RefreshTokenMaxAge); err != nil {
			return domainoauth.AuthSession{}, err
		}
	}

	out := domainoauth.AuthSession{
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		Authenticated: true,
	}
	if tokens.ExpiresIn > 0 {
		expiry := t.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).UTC()
		out.AccessExpiry = &expiry
	}
	return out, nil
}

func (t *TokenStore) AccessToken() string  { return t.getSealed(AccessTokenCookie) }
func (t *TokenStore) RefreshToken() string { return t.getSealed(RefreshTokenCookie) }

// Authenticated reads the client-visible flag.
func (t *TokenStore) Authenticated() bool {
	value, ok := t.store.Get(AuthenticatedCookie)
	return ok && value == "true"
}

// Session assembles the current AuthSession from the cookies.
func (t *TokenStore) Session() domainoauth.AuthSession {
	return domainoauth.AuthSession{
		State:         t.State(),
		AccessToken:   t.AccessToken(),
		RefreshToken:  t.RefreshToken(),
		Authenticated: t.Authenticated(),
	}
}

// Clear expires every session cookie.
func (t *TokenStore) Clear() {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, AuthenticatedCookie, StateCookie} {
		t.store.Delete(name)
	}
}

func (t *TokenStore) setSealed(name, value string, maxAge int) error {
	sealed, err := t.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}
	t.store.Set(Cookie{Name: name, Value: sealed, MaxAge: maxAge, HTTPOnly: true})
	return nil
}

func (t *TokenStore) getSealed(name string) string {
	raw, ok := t.store.Get(name)
	if !ok {
		return ""
	}
	value, err := t.sealer.Open(raw)
	if err != nil {
		t.log().Warn("discarding unreadable session cookie", zap.String("cookie", name), zap.Error(err))
		return ""
	}
	return value
}

func (t *TokenStore) log() *zap.Logger {
	if t != nil && t.logger != nil {
		return t.logger
	}
	return zap.L()
}
