package oauth

import (
	"strings"
	"time"
)

// TokenStyle selects how client credentials reach the token endpoint.
type TokenStyle string

const (
	TokenStyleAuto   TokenStyle = "auto"
	TokenStyleHeader TokenStyle = "header"
	TokenStyleParams TokenStyle = "params"
)

// ParseTokenStyle maps a config value onto a TokenStyle, defaulting to params.
func ParseTokenStyle(raw string) TokenStyle {
	switch TokenStyle(strings.ToLower(strings.TrimSpace(raw))) {
	case TokenStyleAuto:
		return TokenStyleAuto
	case TokenStyleHeader:
		return TokenStyleHeader
	default:
		return TokenStyleParams
	}
}

// ProviderConfig describes the wearable provider's OAuth client registration.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	TokenStyle   TokenStyle
}

// TokenSet models a token endpoint response.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthSession is the per-browser view of the provider connection.
type AuthSession struct {
	State         string
	AccessToken   string
	RefreshToken  string
	AccessExpiry  *time.Time
	Authenticated bool
}

// Connected reports whether an access token is available.
func (s AuthSession) Connected() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}
