// Package oauth2 ships a builtin plugin that fetches OAuth2 access
// tokens and exposes them through the $oauth2 resolver. Tokens are
// fetched through the plugin network capability and cached until close
// to expiry.
package oauth2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/treq/packages/plugin"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

// GrantType selects the OAuth2 flow.
type GrantType string

const (
	ClientCredentials GrantType = "client_credentials"
	Password          GrantType = "password"
)

// Config is read from the plugin's config block. clientSecret may be
// given directly or named indirectly via clientSecretFrom, which is
// looked up through the secrets capability.
type Config struct {
	TokenURL         string
	ClientID         string
	ClientSecret     string
	ClientSecretFrom string
	Scopes           []string
	Username         string
	Password         string
	GrantType        GrantType
}

// Token is the token endpoint's response.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

// IsExpired reports whether the token is within 30s of its expiry.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(30 * time.Second).After(t.ExpiresAt)
}

// Provider fetches and caches tokens. The fetch function comes from the
// plugin context so token traffic is subject to the network permission.
type Provider struct {
	config *Config
	fetch  plugin.FetchFunc
	cache  *tokenCache
}

func NewProvider(config *Config, fetch plugin.FetchFunc) *Provider {
	return &Provider{config: config, fetch: fetch, cache: newTokenCache()}
}

// GetToken returns a cached token while valid, fetching otherwise.
func (p *Provider) GetToken(ctx context.Context) (*Token, error) {
	key := p.cacheKey()
	if token := p.cache.get(key); token != nil && !token.IsExpired() {
		return token, nil
	}

	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.set(key, token)
	return token, nil
}

func (p *Provider) cacheKey() string {
	return p.config.TokenURL + ":" + p.config.ClientID + ":" + strings.Join(p.config.Scopes, ",")
}

func (p *Provider) fetchToken(ctx context.Context) (*Token, error) {
	data := url.Values{}
	switch p.config.GrantType {
	case Password:
		data.Set("grant_type", "password")
		data.Set("username", p.config.Username)
		data.Set("password", p.config.Password)
	default:
		data.Set("grant_type", "client_credentials")
	}
	if len(p.config.Scopes) > 0 {
		data.Set("scope", strings.Join(p.config.Scopes, " "))
	}

	req := treqhttp.NewRequest("POST", p.config.TokenURL)
	req.SetHeader("Content-Type", "application/x-www-form-urlencoded")
	req.SetBody(data.Encode())
	if p.config.ClientID != "" && p.config.ClientSecret != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(p.config.ClientID + ":" + p.config.ClientSecret))
		req.SetHeader("Authorization", "Basic "+auth)
	}

	resp, err := p.fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}

	if resp.StatusCode != 200 {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(resp.Body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("token request failed: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, resp.BodyString())
	}

	var token Token
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if token.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return &token, nil
}

type oauth2Plugin struct {
	provider *Provider
}

// New returns the oauth2 plugin definition. Plugin config keys:
// tokenUrl, clientId, clientSecret or clientSecretFrom, grantType,
// username, password, scopes ([]string).
func New() *plugin.Definition {
	p := &oauth2Plugin{}

	return &plugin.Definition{
		Name:        "oauth2",
		Version:     "1.0.0",
		Permissions: []plugin.Permission{plugin.PermissionNetwork, plugin.PermissionSecrets},
		Setup:       p.setup,
		Resolvers: map[string]plugin.ResolverFunc{
			"$oauth2": p.resolveToken,
		},
	}
}

func (p *oauth2Plugin) setup(_ context.Context, pctx *plugin.PluginContext) error {
	config, err := parseConfig(pctx.Config)
	if err != nil {
		return err
	}

	if config.ClientSecretFrom != "" {
		secrets, err := pctx.RequireSecrets()
		if err != nil {
			return err
		}
		secret, ok := secrets.Get(config.ClientSecretFrom)
		if !ok {
			return fmt.Errorf("secret %q not found", config.ClientSecretFrom)
		}
		config.ClientSecret = secret
	}

	fetch, err := pctx.RequireFetch()
	if err != nil {
		return err
	}

	p.provider = NewProvider(config, fetch)
	return nil
}

// resolveToken backs {{$oauth2}} and {{$oauth2(access_token)}}. The
// optional argument selects a token field; access_token is the default.
func (p *oauth2Plugin) resolveToken(ctx context.Context, args []string) (string, error) {
	if p.provider == nil {
		return "", fmt.Errorf("oauth2 plugin is not set up")
	}
	token, err := p.provider.GetToken(ctx)
	if err != nil {
		return "", err
	}

	field := "access_token"
	if len(args) > 0 {
		field = args[0]
	}
	switch field {
	case "access_token":
		return token.AccessToken, nil
	case "token_type":
		return token.TokenType, nil
	case "scope":
		return token.Scope, nil
	default:
		return "", fmt.Errorf("unknown token field %q", field)
	}
}

func parseConfig(raw map[string]any) (*Config, error) {
	config := &Config{GrantType: ClientCredentials}

	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	config.TokenURL = str("tokenUrl")
	config.ClientID = str("clientId")
	config.ClientSecret = str("clientSecret")
	config.ClientSecretFrom = str("clientSecretFrom")
	config.Username = str("username")
	config.Password = str("password")
	if g := str("grantType"); g != "" {
		config.GrantType = GrantType(g)
	}
	if scopes, ok := raw["scopes"].([]any); ok {
		for _, s := range scopes {
			if scope, ok := s.(string); ok {
				config.Scopes = append(config.Scopes, scope)
			}
		}
	}

	if config.TokenURL == "" {
		return nil, fmt.Errorf("oauth2: tokenUrl is required")
	}
	switch config.GrantType {
	case ClientCredentials:
	case Password:
		if config.Username == "" || config.Password == "" {
			return nil, fmt.Errorf("oauth2: password grant requires username and password")
		}
	default:
		return nil, fmt.Errorf("oauth2: unsupported grant type %q", config.GrantType)
	}
	return config, nil
}
