package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthMode selects how a Client authenticates with its MCP server (§4.22).
type AuthMode string

const (
	AuthModeNone   AuthMode = ""
	AuthModeJWT    AuthMode = "jwt"
	AuthModeOAuth2 AuthMode = "oauth2"
)

// AuthConfig configures authentication for a streamable-HTTP MCP server.
// Neither mode changes the wire shape in §4.4/§6: both only populate the
// Authorization entry in the headers map the HTTP transport already attaches
// to every outgoing request.
type AuthConfig struct {
	Mode AuthMode `yaml:"mode" json:"mode,omitempty"`

	JWTSecret  string        `yaml:"jwt_secret" json:"jwt_secret,omitempty"`
	JWTSubject string        `yaml:"jwt_subject" json:"jwt_subject,omitempty"`
	JWTExpiry  time.Duration `yaml:"jwt_expiry" json:"jwt_expiry,omitempty"`

	OAuthClientID     string   `yaml:"oauth_client_id" json:"oauth_client_id,omitempty"`
	OAuthClientSecret string   `yaml:"oauth_client_secret" json:"oauth_client_secret,omitempty"`
	OAuthTokenURL     string   `yaml:"oauth_token_url" json:"oauth_token_url,omitempty"`
	OAuthScopes       []string `yaml:"oauth_scopes" json:"oauth_scopes,omitempty"`
}

// Validate checks that cfg carries what its Mode needs.
func (c *AuthConfig) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Mode {
	case AuthModeNone:
		return nil
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("mcp auth: jwt mode requires jwt_secret")
		}
	case AuthModeOAuth2:
		if c.OAuthClientID == "" || c.OAuthClientSecret == "" || c.OAuthTokenURL == "" {
			return fmt.Errorf("mcp auth: oauth2 mode requires oauth_client_id, oauth_client_secret and oauth_token_url")
		}
	default:
		return fmt.Errorf("mcp auth: unknown mode %q", c.Mode)
	}
	return nil
}

// Authenticator produces the bearer token to attach to a request, caching
// and refreshing it on its own schedule.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// NewAuthenticator builds the Authenticator cfg's Mode names, or returns a
// nil Authenticator for AuthModeNone.
func NewAuthenticator(cfg *AuthConfig) (Authenticator, error) {
	if cfg == nil || cfg.Mode == AuthModeNone {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case AuthModeJWT:
		return newJWTAuthenticator(cfg), nil
	case AuthModeOAuth2:
		return newOAuth2Authenticator(cfg), nil
	default:
		return nil, fmt.Errorf("mcp auth: unknown mode %q", cfg.Mode)
	}
}

// jwtAuthenticator signs a short-lived HS256 bearer token per client
// lifetime, grounded on the teacher's auth.JWTService token issuance, and
// re-signs it once it is within a minute of expiry.
type jwtAuthenticator struct {
	secret  []byte
	subject string
	expiry  time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newJWTAuthenticator(cfg *AuthConfig) *jwtAuthenticator {
	expiry := cfg.JWTExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	subject := cfg.JWTSubject
	if subject == "" {
		subject = "turnengine"
	}
	return &jwtAuthenticator{secret: []byte(cfg.JWTSecret), subject: subject, expiry: expiry}
}

func (a *jwtAuthenticator) Token(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiresAt.Add(-time.Minute)) {
		return a.token, nil
	}

	now := time.Now()
	exp := now.Add(a.expiry)
	claims := jwt.RegisteredClaims{
		Subject:   a.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("mcp auth: sign jwt: %w", err)
	}
	a.token = signed
	a.expiresAt = exp
	return a.token, nil
}

// oauth2Authenticator runs the OAuth2 client-credentials flow, grounded on
// the teacher's auth.GenericOAuthProvider token exchange but using
// golang.org/x/oauth2's own caching TokenSource instead of a hand-rolled one.
type oauth2Authenticator struct {
	source oauth2.TokenSource
}

func newOAuth2Authenticator(cfg *AuthConfig) *oauth2Authenticator {
	conf := &clientcredentials.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		TokenURL:     cfg.OAuthTokenURL,
		Scopes:       cfg.OAuthScopes,
	}
	return &oauth2Authenticator{source: conf.TokenSource(context.Background())}
}

func (a *oauth2Authenticator) Token(context.Context) (string, error) {
	tok, err := a.source.Token()
	if err != nil {
		return "", fmt.Errorf("mcp auth: oauth2 token: %w", err)
	}
	return tok.AccessToken, nil
}
