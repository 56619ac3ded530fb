package http

import (
	"net/url"
	"time"
)

// Request is the mutable carrier record threaded through the pipeline
// stages. Before interpolation the fields may still contain {{...}}
// placeholders; after compilation the request is transmission-ready.
type Request struct {
	Name        string
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	BodyFile    string // body loaded from file at compile time, relative to base dir
	QueryParams map[string]string
	Timeout     time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:      method,
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	r.QueryParams[key] = value
	return r
}

// Header returns the value for key using case-insensitive matching.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if equalFold(k, key) {
			return v
		}
	}
	return ""
}

// Clone returns a deep copy so a hook can mutate its own view without
// aliasing the previous stage's maps.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Headers = make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		clone.Headers[k] = v
	}
	clone.QueryParams = make(map[string]string, len(r.QueryParams))
	for k, v := range r.QueryParams {
		clone.QueryParams[k] = v
	}
	return &clone
}

// BuildURL appends query parameters to the request URL.
func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
