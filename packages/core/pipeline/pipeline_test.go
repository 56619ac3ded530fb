package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

// fakeTransport records every compiled request and replays scripted
// responses.
type fakeTransport struct {
	requests  []*treqhttp.Request
	responses []*treqhttp.Response
	errs      []error
}

func (f *fakeTransport) Do(ctx context.Context, req *treqhttp.Request) (*treqhttp.Response, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req.Clone())

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i].Clone(), nil
	}
	return okResponse(), nil
}

func okResponse() *treqhttp.Response {
	return &treqhttp.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"ok":true}`),
	}
}

func newTestManager(t *testing.T, opts ...plugin.ManagerOption) *plugin.Manager {
	t.Helper()
	return plugin.NewManager(zerolog.Nop(), t.TempDir(), opts...)
}

func parsedRequest(method, url string) *parser.Request {
	return &parser.Request{Name: "test", Method: method, URL: url, Headers: map[string]string{}}
}

func TestRun_Success(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport, WithDefaultHeaders(map[string]string{"User-Agent": "treq-test"}))

	hctx := m.CreateHookContext(nil)
	resp, err := p.Run(context.Background(), parsedRequest("GET", "http://example.test/users"), nil, ".", hctx)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, transport.requests, 1)
	assert.Equal(t, "treq-test", transport.requests[0].Header("User-Agent"))
}

func TestRun_DefaultHeadersDoNotOverrideRequest(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport, WithDefaultHeaders(map[string]string{"Accept": "application/xml"}))

	parsed := parsedRequest("GET", "http://example.test/")
	parsed.Headers["accept"] = "application/json"

	hctx := m.CreateHookContext(nil)
	_, err := p.Run(context.Background(), parsed, nil, ".", hctx)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, "application/json", transport.requests[0].Header("Accept"))
}

func TestRun_Interpolation(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.RegisterResolver("$token", func(ctx context.Context, args []string) (string, error) {
		return "tok-" + args[0], nil
	}))

	transport := &fakeTransport{}
	p := New(m, transport)

	parsed := parsedRequest("GET", "{{baseUrl}}/users")
	parsed.Headers["Authorization"] = "Bearer {{$token(api)}}"

	hctx := m.CreateHookContext(nil)
	variables := map[string]any{"baseUrl": "http://example.test"}
	_, err := p.Run(context.Background(), parsed, variables, ".", hctx)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, "http://example.test/users", transport.requests[0].URL)
	assert.Equal(t, "Bearer tok-api", transport.requests[0].Header("Authorization"))
}

func TestRun_InterpolationErrorRoutedThroughErrorHooks(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.RegisterResolver("$vault", func(ctx context.Context, args []string) (string, error) {
		return "", errors.New("sealed")
	}))

	var stage string
	_, err := m.Register(&plugin.Definition{
		Name: "observer",
		Hooks: map[plugin.HookName]any{
			plugin.HookError: plugin.ErrorHook(func(ctx context.Context, in *plugin.ErrorInput, out *plugin.ErrorOutput) error {
				stage = in.Stage
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	p := New(m, transport)

	parsed := parsedRequest("GET", "http://example.test/{{$vault(key)}}")
	hctx := m.CreateHookContext(nil)
	_, err = p.Run(context.Background(), parsed, nil, ".", hctx)

	require.Error(t, err)
	var resErr *plugin.ResolverError
	assert.ErrorAs(t, err, &resErr)
	assert.Equal(t, "interpolate", stage)
	assert.Empty(t, transport.requests)
}

func TestRun_SkipSynthesizes204(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Register(&plugin.Definition{
		Name: "skipper",
		Hooks: map[plugin.HookName]any{
			plugin.HookRequestBefore: plugin.RequestBeforeHook(func(ctx context.Context, in *plugin.HookInput, out *plugin.RequestOutput) error {
				out.Skip = true
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	p := New(m, transport)

	hctx := m.CreateHookContext(nil)
	resp, err := p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)

	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, "204 No Content", resp.Status)
	assert.Empty(t, transport.requests, "skip must suppress transmission entirely")
}

func TestRun_RetryFromResponseHook(t *testing.T) {
	m := newTestManager(t)

	var seenRetries []int
	_, err := m.Register(&plugin.Definition{
		Name: "retrier",
		Hooks: map[plugin.HookName]any{
			plugin.HookResponseAfter: plugin.ResponseAfterHook(func(ctx context.Context, in *plugin.ResponseInput, out *plugin.ResponseOutput) error {
				seenRetries = append(seenRetries, in.Ctx.Retries)
				if in.Response.StatusCode >= 500 {
					out.Retry = &plugin.RetrySignal{Delay: time.Millisecond, Reason: "server error"}
				}
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	bad := &treqhttp.Response{StatusCode: 502, Status: "502 Bad Gateway", Headers: map[string]string{}}
	transport := &fakeTransport{responses: []*treqhttp.Response{bad, bad, bad, bad}}
	p := New(m, transport)

	hctx := m.CreateHookContext(&plugin.ContextOverrides{MaxRetries: 2})
	resp, err := p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)

	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
	// Budget of 2 retries means exactly 3 attempts, counted 0,1,2.
	assert.Len(t, transport.requests, 3)
	assert.Equal(t, []int{0, 1, 2}, seenRetries)
}

func TestRun_RetryDelayFallbacks(t *testing.T) {
	retrier := func(delay time.Duration) *plugin.Definition {
		return &plugin.Definition{
			Name: "retrier",
			Hooks: map[plugin.HookName]any{
				plugin.HookResponseAfter: plugin.ResponseAfterHook(func(ctx context.Context, in *plugin.ResponseInput, out *plugin.ResponseOutput) error {
					if in.Response.StatusCode >= 500 {
						out.Retry = &plugin.RetrySignal{Delay: delay}
					}
					return nil
				}),
			},
		}
	}

	bad := &treqhttp.Response{StatusCode: 502, Status: "502 Bad Gateway", Headers: map[string]string{}}

	run := func(t *testing.T, signalDelay time.Duration, requestDelayMs int, opts ...Option) []int64 {
		t.Helper()
		m := newTestManager(t)
		_, err := m.Register(retrier(signalDelay), plugin.SourceInline, nil)
		require.NoError(t, err)

		var delays []int64
		m.Subscribe(func(ev plugin.Event) {
			if ev.Type == plugin.EventRetryScheduled {
				delays = append(delays, ev.DelayMs)
			}
		})

		transport := &fakeTransport{responses: []*treqhttp.Response{bad, okResponse()}}
		p := New(m, transport, opts...)

		parsed := parsedRequest("GET", "http://example.test/")
		parsed.RetryDelay = requestDelayMs

		hctx := m.CreateHookContext(&plugin.ContextOverrides{MaxRetries: 1})
		_, err = p.Run(context.Background(), parsed, nil, ".", hctx)
		require.NoError(t, err)
		return delays
	}

	t.Run("signal delay wins", func(t *testing.T) {
		delays := run(t, 40*time.Millisecond, 10, WithRetryDelay(5*time.Millisecond))
		assert.Equal(t, []int64{40}, delays)
	})

	t.Run("request retryDelay used when signal has none", func(t *testing.T) {
		delays := run(t, 0, 10, WithRetryDelay(5*time.Millisecond))
		assert.Equal(t, []int64{10}, delays)
	})

	t.Run("pipeline default is the last resort", func(t *testing.T) {
		delays := run(t, 0, 0, WithRetryDelay(5*time.Millisecond))
		assert.Equal(t, []int64{5}, delays)
	})
}

func TestRun_RetrySucceedsMidway(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Register(&plugin.Definition{
		Name: "retrier",
		Hooks: map[plugin.HookName]any{
			plugin.HookResponseAfter: plugin.ResponseAfterHook(func(ctx context.Context, in *plugin.ResponseInput, out *plugin.ResponseOutput) error {
				if in.Response.StatusCode >= 500 {
					out.Retry = &plugin.RetrySignal{Delay: time.Millisecond}
				}
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	bad := &treqhttp.Response{StatusCode: 502, Status: "502 Bad Gateway", Headers: map[string]string{}}
	transport := &fakeTransport{responses: []*treqhttp.Response{bad, okResponse()}}
	p := New(m, transport)

	hctx := m.CreateHookContext(&plugin.ContextOverrides{MaxRetries: 5})
	resp, err := p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, transport.requests, 2)
}

func TestRun_TransportErrorSuppressedWithSubstitute(t *testing.T) {
	m := newTestManager(t)
	substitute := &treqhttp.Response{StatusCode: 503, Status: "503 Service Unavailable", Headers: map[string]string{}}

	_, err := m.Register(&plugin.Definition{
		Name: "fallback",
		Hooks: map[plugin.HookName]any{
			plugin.HookError: plugin.ErrorHook(func(ctx context.Context, in *plugin.ErrorInput, out *plugin.ErrorOutput) error {
				out.Suppress = true
				out.Response = substitute
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	transport := &fakeTransport{errs: []error{errors.New("connection refused")}}
	p := New(m, transport)

	hctx := m.CreateHookContext(nil)
	resp, err := p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)

	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestRun_TransportErrorRetriedThenFails(t *testing.T) {
	m := newTestManager(t)
	cause := errors.New("connection refused")

	_, err := m.Register(&plugin.Definition{
		Name: "retrier",
		Hooks: map[plugin.HookName]any{
			plugin.HookError: plugin.ErrorHook(func(ctx context.Context, in *plugin.ErrorInput, out *plugin.ErrorOutput) error {
				out.Retry = &plugin.RetrySignal{Delay: time.Millisecond}
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	transport := &fakeTransport{errs: []error{cause, cause}}
	p := New(m, transport)

	hctx := m.CreateHookContext(&plugin.ContextOverrides{MaxRetries: 1})
	_, err = p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, transport.requests, 2)
}

func TestRun_ResponseOverridesApplied(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Register(&plugin.Definition{
		Name: "rewriter",
		Hooks: map[plugin.HookName]any{
			plugin.HookResponseAfter: plugin.ResponseAfterHook(func(ctx context.Context, in *plugin.ResponseInput, out *plugin.ResponseOutput) error {
				status := 299
				out.Status = &status
				out.Headers = map[string]string{"X-Rewritten": "yes"}
				out.SetBody([]byte("rewritten"))
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	p := New(m, transport)

	hctx := m.CreateHookContext(nil)
	resp, err := p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)

	require.NoError(t, err)
	assert.Equal(t, 299, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header("X-Rewritten"))
	assert.Equal(t, "rewritten", resp.BodyString())
	// Untouched fields pass through from the transport's response.
	assert.Equal(t, "application/json", resp.ContentType())
}

func TestRun_BeforeHookMutatesOutgoingRequest(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Register(&plugin.Definition{
		Name: "tagger",
		Hooks: map[plugin.HookName]any{
			plugin.HookRequestBefore: plugin.RequestBeforeHook(func(ctx context.Context, in *plugin.HookInput, out *plugin.RequestOutput) error {
				out.Request.SetHeader("X-Attempt", fmt.Sprintf("%d", in.Ctx.Retries))
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	p := New(m, transport)

	hctx := m.CreateHookContext(nil)
	_, err = p.Run(context.Background(), parsedRequest("GET", "http://example.test/"), nil, ".", hctx)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, "0", transport.requests[0].Header("X-Attempt"))
}

func TestCompile_BodyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payload.json"), []byte(`{"a":1}`), 0644))

	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	parsed := parsedRequest("POST", "http://example.test/upload")
	parsed.BodyFile = "payload.json"

	hctx := m.CreateHookContext(nil)
	_, err := p.Run(context.Background(), parsed, nil, dir, hctx)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, `{"a":1}`, transport.requests[0].Body)
	// JSON bodies get a sniffed Content-Type when none is set.
	assert.Equal(t, "application/json", transport.requests[0].Header("Content-Type"))
}

func TestCompile_MultipartForm(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatar.png"), []byte("fake-png-bytes"), 0644))

	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	parsed := parsedRequest("POST", "http://example.test/upload")
	parsed.Headers["Content-Type"] = "multipart/form-data"
	parsed.Body = "name=alice\navatar=@avatar.png\n"

	hctx := m.CreateHookContext(nil)
	_, err := p.Run(context.Background(), parsed, nil, dir, hctx)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	sent := transport.requests[0]

	contentType := sent.Header("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	require.NotEmpty(t, params["boundary"])

	reader := multipart.NewReader(strings.NewReader(sent.Body), params["boundary"])
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	defer form.RemoveAll()

	assert.Equal(t, []string{"alice"}, form.Value["name"])
	require.Len(t, form.File["avatar"], 1)
	assert.Equal(t, "avatar.png", form.File["avatar"][0].Filename)
}

func TestCompile_MultipartBadLineFails(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	parsed := parsedRequest("POST", "http://example.test/upload")
	parsed.Headers["Content-Type"] = "multipart/form-data"
	parsed.Body = "not a form line"

	hctx := m.CreateHookContext(nil)
	_, err := p.Run(context.Background(), parsed, nil, ".", hctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field=value")
	assert.Empty(t, transport.requests)
}

func TestCompile_MissingBodyFileFails(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	parsed := parsedRequest("POST", "http://example.test/upload")
	parsed.BodyFile = "missing.json"

	hctx := m.CreateHookContext(nil)
	_, err := p.Run(context.Background(), parsed, nil, t.TempDir(), hctx)
	require.Error(t, err)
	assert.Empty(t, transport.requests)
}

func TestMemoryJar(t *testing.T) {
	jar := NewMemoryJar()

	resp := okResponse()
	resp.Headers["Set-Cookie"] = "session=abc123; Path=/; HttpOnly"
	jar.Remember("http://example.test/login", resp)

	assert.Equal(t, "session=abc123", jar.CookieHeader("http://example.test/users"))
	assert.Empty(t, jar.CookieHeader("http://other.test/"))
}

func TestRun_CookieInjection(t *testing.T) {
	m := newTestManager(t)
	jar := NewMemoryJar()
	transport := &fakeTransport{}
	p := New(m, transport, WithCookieProvider(jar))

	login := okResponse()
	login.Headers["Set-Cookie"] = "session=abc123"
	transport.responses = []*treqhttp.Response{login, okResponse()}

	hctx := m.CreateHookContext(nil)
	_, err := p.Run(context.Background(), parsedRequest("POST", "http://example.test/login"), nil, ".", hctx)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), parsedRequest("GET", "http://example.test/me"), nil, ".", m.CreateHookContext(nil))
	require.NoError(t, err)

	require.Len(t, transport.requests, 2)
	assert.Empty(t, transport.requests[0].Header("Cookie"))
	assert.Equal(t, "session=abc123", transport.requests[1].Header("Cookie"))
}
