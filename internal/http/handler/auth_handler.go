package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
	authsvc "github.com/smallbiznis/valora-sleep/internal/service/auth"
	"github.com/smallbiznis/valora-sleep/internal/session"
)

// AuthHandler serves the provider connection endpoints.
type AuthHandler struct {
	OAuth    authsvc.OAuthService
	Sessions *session.Manager
	logger   *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(oauth authsvc.OAuthService, sessions *session.Manager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{OAuth: oauth, Sessions: sessions, logger: logger}
}

// Connect stores a fresh state and sends the browser to the provider's consent page.
func (h *AuthHandler) Connect(c *gin.Context) {
	out, err := h.OAuth.StartAuthorization(c.Request.Context(), h.Sessions.For(c))
	if err != nil {
		h.log().Error("start authorization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start WHOOP authorization"})
		return
	}
	if strings.EqualFold(c.Query("format"), "json") {
		c.JSON(http.StatusOK, gin.H{"authorization_url": out.AuthorizationURL})
		return
	}
	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// Callback validates the redirect, exchanges the code and sets the session cookies.
func (h *AuthHandler) Callback(c *gin.Context) {
	input := authsvc.OAuthCallbackInput{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}
	result, err := h.OAuth.HandleCallback(c.Request.Context(), h.Sessions.For(c), input)
	if err != nil {
		h.respondOAuthServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, result.RedirectTo)
}

// Session reports whether the browser holds a provider connection.
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": h.Sessions.For(c).Authenticated()})
}

// Disconnect expires every session cookie.
func (h *AuthHandler) Disconnect(c *gin.Context) {
	h.OAuth.Disconnect(c.Request.Context(), h.Sessions.For(c))
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) respondOAuthServiceError(c *gin.Context, err error) {
	logger := h.log()
	var denied *domainoauth.AuthorizationDeniedError
	var authErr *domainoauth.ProviderAuthError
	var transportErr *domain.TransportError
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &denied):
		logger.Warn("oauth authorization denied", zap.String("code", denied.Code))
		c.JSON(http.StatusBadRequest, gin.H{"error": denied.Error()})
	case errors.Is(err, domainoauth.ErrInvalidState):
		logger.Warn("oauth invalid state")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
	case errors.Is(err, domainoauth.ErrMissingCode):
		logger.Warn("oauth callback without code")
		c.JSON(http.StatusBadRequest, gin.H{"error": "No code provided"})
	case errors.As(err, &authErr):
		logger.Error("oauth token exchange rejected", zap.Int("status", authErr.Status), zap.String("code", authErr.Code))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get access token: " + exchangeDetail(authErr)})
	case errors.As(err, &transportErr):
		logger.Error("oauth token endpoint unreachable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get access token: token endpoint unreachable"})
	case errors.As(err, &cfgErr):
		logger.Error("oauth misconfigured", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to handle callback"})
	default:
		logger.Error("oauth callback failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to handle callback"})
	}
}

func exchangeDetail(err *domainoauth.ProviderAuthError) string {
	switch {
	case err.Description != "":
		return err.Description
	case err.Code != "":
		return err.Code
	case err.Status != 0:
		return http.StatusText(err.Status)
	default:
		return "unknown error"
	}
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}
