package pipeline

import (
	"net/url"
	"strings"
	"sync"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

// CookieProvider supplies the Cookie header for outgoing requests and
// observes responses for Set-Cookie values. Jar semantics beyond
// host-keyed name/value pairs are out of scope here.
type CookieProvider interface {
	CookieHeader(rawURL string) string
	Remember(rawURL string, resp *treqhttp.Response)
}

// MemoryJar is a minimal in-memory CookieProvider keyed by host.
type MemoryJar struct {
	mu     sync.Mutex
	byHost map[string]map[string]string
}

func NewMemoryJar() *MemoryJar {
	return &MemoryJar{byHost: make(map[string]map[string]string)}
}

func (j *MemoryJar) CookieHeader(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" {
		return ""
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	cookies := j.byHost[host]
	if len(cookies) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(cookies))
	for name, value := range cookies {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, "; ")
}

func (j *MemoryJar) Remember(rawURL string, resp *treqhttp.Response) {
	setCookie := resp.Header("Set-Cookie")
	if setCookie == "" {
		return
	}
	host := hostOf(rawURL)
	if host == "" {
		return
	}

	// Only the name=value pair matters here; attributes are dropped.
	pair := strings.SplitN(setCookie, ";", 2)[0]
	name, value, found := strings.Cut(pair, "=")
	if !found || strings.TrimSpace(name) == "" {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.byHost[host] == nil {
		j.byHost[host] = make(map[string]string)
	}
	j.byHost[host][strings.TrimSpace(name)] = strings.TrimSpace(value)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
