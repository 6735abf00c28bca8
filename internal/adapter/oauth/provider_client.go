package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
)

// ProviderClient encapsulates outbound calls to the wearable provider's OAuth endpoints.
type ProviderClient interface {
	AuthorizationURL() (authURL string, state string, err error)
	ExchangeCode(ctx context.Context, code string) (domainoauth.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (domainoauth.TokenSet, error)
}

// HTTPProviderClient is the default implementation on top of golang.org/x/oauth2.
type HTTPProviderClient struct {
	provider   domainoauth.ProviderConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	newState   func() string
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(provider domainoauth.ProviderConfig, client *http.Client, timeout time.Duration) *HTTPProviderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProviderClient{
		provider:   provider,
		oauth:      newOAuthConfig(provider),
		httpClient: client,
		timeout:    timeout,
		newState:   uuid.NewString,
	}
}

// AuthorizationURL builds the consent URL and a fresh UUIDv4 state.
func (c *HTTPProviderClient) AuthorizationURL() (string, string, error) {
	if strings.TrimSpace(c.provider.ClientID) == "" {
		return "", "", domain.NewConfigError("WHOOP_CLIENT_ID")
	}
	if strings.TrimSpace(c.provider.AuthURL) == "" {
		return "", "", domain.NewConfigError("WHOOP_AUTH_URL")
	}
	state := c.newState()
	return c.oauth.AuthCodeURL(state), state, nil
}

// ExchangeCode performs the authorization_code grant.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, code string) (domainoauth.TokenSet, error) {
	if err := c.checkCredentials(); err != nil {
		return domainoauth.TokenSet{}, err
	}
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return domainoauth.TokenSet{}, mapTokenError("token exchange", err)
	}
	return tokenSet(tok), nil
}

// Refresh performs the refresh_token grant.
func (c *HTTPProviderClient) Refresh(ctx context.Context, refreshToken string) (domainoauth.TokenSet, error) {
	if err := c.checkCredentials(); err != nil {
		return domainoauth.TokenSet{}, err
	}
	if strings.TrimSpace(refreshToken) == "" {
		return domainoauth.TokenSet{}, &domainoauth.ProviderAuthError{Code: "invalid_grant", Description: "refresh token missing"}
	}
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return domainoauth.TokenSet{}, mapTokenError("token refresh", err)
	}
	return tokenSet(tok), nil
}

// newOAuthConfig is built once per client so the auto-detected auth style is
// remembered across exchanges.
func newOAuthConfig(provider domainoauth.ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   provider.AuthURL,
			TokenURL:  provider.TokenURL,
			AuthStyle: authStyle(provider.TokenStyle),
		},
		RedirectURL: provider.RedirectURI,
		Scopes:      provider.Scopes,
	}
}

func (c *HTTPProviderClient) checkCredentials() error {
	switch {
	case strings.TrimSpace(c.provider.ClientID) == "":
		return domain.NewConfigError("WHOOP_CLIENT_ID")
	case strings.TrimSpace(c.provider.ClientSecret) == "":
		return domain.NewConfigError("WHOOP_CLIENT_SECRET")
	case strings.TrimSpace(c.provider.TokenURL) == "":
		return domain.NewConfigError("WHOOP_TOKEN_URL")
	}
	return nil
}

func (c *HTTPProviderClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

func authStyle(style domainoauth.TokenStyle) oauth2.AuthStyle {
	switch style {
	case domainoauth.TokenStyleHeader:
		return oauth2.AuthStyleInHeader
	case domainoauth.TokenStyleAuto:
		return oauth2.AuthStyleAutoDetect
	default:
		return oauth2.AuthStyleInParams
	}
}

func tokenSet(tok *oauth2.Token) domainoauth.TokenSet {
	out := domainoauth.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		Scope:        stringValue(tok.Extra("scope")),
	}
	if out.ExpiresIn == 0 {
		out.ExpiresIn = int64Value(tok.Extra("expires_in"))
	}
	if out.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	return out
}

// mapTokenError sorts oauth2 failures into provider rejections and transport failures.
func mapTokenError(op string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		out := &domainoauth.ProviderAuthError{
			Code:        retrieve.ErrorCode,
			Description: retrieve.ErrorDescription,
		}
		if retrieve.Response != nil {
			out.Status = retrieve.Response.StatusCode
		}
		if out.Code == "" && out.Description == "" {
			out.Description = strings.TrimSpace(string(retrieve.Body))
		}
		return out
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &domain.TransportError{Op: op, Err: err}
	}
	// 2xx answers that could not be used (no access_token, unparseable body).
	return &domainoauth.ProviderAuthError{Status: http.StatusOK, Description: err.Error()}
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
