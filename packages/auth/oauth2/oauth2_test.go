package oauth2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/plugin"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

type fakeTokenServer struct {
	requests []*treqhttp.Request
	status   int
	body     string
}

func (f *fakeTokenServer) fetch(_ context.Context, req *treqhttp.Request) (*treqhttp.Response, error) {
	f.requests = append(f.requests, req.Clone())
	status := f.status
	if status == 0 {
		status = 200
	}
	return &treqhttp.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(f.body),
	}, nil
}

func tokenJSON(accessToken string, expiresIn int) string {
	data, _ := json.Marshal(map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
	return string(data)
}

func TestGetToken_ClientCredentials(t *testing.T) {
	server := &fakeTokenServer{body: tokenJSON("abc123", 3600)}
	provider := NewProvider(&Config{
		TokenURL:     "https://auth.test/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"read", "write"},
	}, server.fetch)

	token, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)

	require.Len(t, server.requests, 1)
	req := server.requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://auth.test/token", req.URL)
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header("Content-Type"))

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("client:secret"))
	assert.Equal(t, expected, req.Header("Authorization"))

	form, err := url.ParseQuery(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "read write", form.Get("scope"))
}

func TestGetToken_PasswordGrant(t *testing.T) {
	server := &fakeTokenServer{body: tokenJSON("pw-token", 60)}
	provider := NewProvider(&Config{
		TokenURL:  "https://auth.test/token",
		GrantType: Password,
		Username:  "alice",
		Password:  "hunter2",
	}, server.fetch)

	token, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pw-token", token.AccessToken)

	form, err := url.ParseQuery(server.requests[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "alice", form.Get("username"))
	assert.Equal(t, "hunter2", form.Get("password"))
}

func TestGetToken_CachesUntilExpiry(t *testing.T) {
	server := &fakeTokenServer{body: tokenJSON("cached", 3600)}
	provider := NewProvider(&Config{TokenURL: "https://auth.test/token"}, server.fetch)

	first, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	second, err := provider.GetToken(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, server.requests, 1)
}

func TestGetToken_RefetchesExpired(t *testing.T) {
	server := &fakeTokenServer{body: tokenJSON("short", 10)}
	provider := NewProvider(&Config{TokenURL: "https://auth.test/token"}, server.fetch)

	// expires_in 10 is inside the 30s expiry skew, so the token is
	// already considered expired on the next call.
	_, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	_, err = provider.GetToken(context.Background())
	require.NoError(t, err)

	assert.Len(t, server.requests, 2)
}

func TestGetToken_ErrorResponse(t *testing.T) {
	server := &fakeTokenServer{
		status: 401,
		body:   `{"error":"invalid_client","error_description":"bad secret"}`,
	}
	provider := NewProvider(&Config{TokenURL: "https://auth.test/token"}, server.fetch)

	_, err := provider.GetToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
	assert.Contains(t, err.Error(), "bad secret")
}

func TestTokenIsExpired(t *testing.T) {
	fresh := &Token{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, fresh.IsExpired())

	soon := &Token{ExpiresAt: time.Now().Add(10 * time.Second)}
	assert.True(t, soon.IsExpired())

	noExpiry := &Token{}
	assert.False(t, noExpiry.IsExpired())
}

func TestSetup_ResolverReturnsToken(t *testing.T) {
	server := &fakeTokenServer{body: tokenJSON("resolved-token", 3600)}

	def := New()
	pctx := &plugin.PluginContext{
		PluginID: def.ID(),
		Config: map[string]any{
			"tokenUrl": "https://auth.test/token",
			"clientId": "client",
		},
		Fetch: server.fetch,
	}
	require.NoError(t, def.Setup(context.Background(), pctx))

	resolve := def.Resolvers["$oauth2"]
	require.NotNil(t, resolve)

	value, err := resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "resolved-token", value)

	value, err = resolve(context.Background(), []string{"token_type"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", value)

	_, err = resolve(context.Background(), []string{"bogus"})
	assert.ErrorContains(t, err, "unknown token field")
}

func TestSetup_SecretLookup(t *testing.T) {
	server := &fakeTokenServer{body: tokenJSON("tok", 3600)}

	def := New()
	pctx := &plugin.PluginContext{
		PluginID: def.ID(),
		Config: map[string]any{
			"tokenUrl":         "https://auth.test/token",
			"clientId":         "client",
			"clientSecretFrom": "OAUTH_SECRET",
		},
		Fetch:   server.fetch,
		Secrets: plugin.MapSecrets{"OAUTH_SECRET": "s3cret"},
	}
	require.NoError(t, def.Setup(context.Background(), pctx))

	_, err := def.Resolvers["$oauth2"](context.Background(), nil)
	require.NoError(t, err)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("client:s3cret"))
	assert.Equal(t, expected, server.requests[0].Header("Authorization"))
}

func TestSetup_MissingSecretFails(t *testing.T) {
	def := New()
	pctx := &plugin.PluginContext{
		PluginID: def.ID(),
		Config: map[string]any{
			"tokenUrl":         "https://auth.test/token",
			"clientSecretFrom": "MISSING",
		},
		Fetch:   (&fakeTokenServer{}).fetch,
		Secrets: plugin.MapSecrets{},
	}
	err := def.Setup(context.Background(), pctx)
	assert.ErrorContains(t, err, `secret "MISSING" not found`)
}

func TestSetup_NetworkPermissionRequired(t *testing.T) {
	def := New()
	pctx := &plugin.PluginContext{
		PluginID: def.ID(),
		Config:   map[string]any{"tokenUrl": "https://auth.test/token"},
	}
	err := def.Setup(context.Background(), pctx)

	var denied *plugin.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, plugin.PermissionNetwork, denied.Permission)
}

func TestResolver_ErrorsBeforeSetup(t *testing.T) {
	def := New()

	_, err := def.Resolvers["$oauth2"](context.Background(), nil)
	assert.ErrorContains(t, err, "not set up")
}

func TestParseConfig_Validation(t *testing.T) {
	_, err := parseConfig(map[string]any{})
	assert.ErrorContains(t, err, "tokenUrl is required")

	_, err = parseConfig(map[string]any{"tokenUrl": "x", "grantType": "implicit"})
	assert.ErrorContains(t, err, "unsupported grant type")

	_, err = parseConfig(map[string]any{"tokenUrl": "x", "grantType": "password"})
	assert.ErrorContains(t, err, "requires username and password")

	cfg, err := parseConfig(map[string]any{
		"tokenUrl": "x",
		"scopes":   []any{"read", "write"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, cfg.Scopes)
	assert.Equal(t, ClientCredentials, cfg.GrantType)
}
