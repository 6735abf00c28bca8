package session

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/seal"
)

// Manager hands out a TokenStore bound to each request's cookies.
type Manager struct {
	opts     CookieOptions
	sealer   *seal.Sealer
	stateTTL time.Duration
	logger   *zap.Logger
}

// NewManager builds a Manager from cookie attributes and an optional sealer.
func NewManager(opts CookieOptions, sealer *seal.Sealer, stateTTL time.Duration, logger *zap.Logger) *Manager {
	return &Manager{opts: opts, sealer: sealer, stateTTL: stateTTL, logger: logger}
}

// For returns the TokenStore for the current request.
func (m *Manager) For(c *gin.Context) *TokenStore {
	return NewTokenStore(NewCookieStore(c, m.opts), m.sealer, m.stateTTL, m.logger)
}
