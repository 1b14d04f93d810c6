package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/matzehuels/contentgraph/pkg/cache"
	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/observability"
)

const httpTimeout = 5 * time.Minute

// HTTPOptions configures an HTTPStore.
type HTTPOptions struct {
	// BaseURL is the directory URL archives live under.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Attempts and Delay control retries of transient failures. Defaults: 3
	// attempts starting at one second.
	Attempts int
	Delay    time.Duration

	Client *http.Client
}

// HTTPStore reads archives with GET and publishes them with PUT.
type HTTPStore struct {
	base     *url.URL
	token    string
	attempts int
	delay    time.Duration
	client   *http.Client
}

// NewHTTPStore validates the base URL.
func NewHTTPStore(opts HTTPOptions) (*HTTPStore, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("http remote: invalid base url %q", opts.BaseURL)
	}
	s := &HTTPStore{
		base:     u,
		token:    opts.Token,
		attempts: opts.Attempts,
		delay:    opts.Delay,
		client:   opts.Client,
	}
	if s.attempts <= 0 {
		s.attempts = 3
	}
	if s.delay <= 0 {
		s.delay = time.Second
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: httpTimeout}
	}
	return s, nil
}

func (s *HTTPStore) url(m content.Marketplace) *url.URL {
	u := *s.base
	u.Path = ObjectName(strings.TrimSuffix(u.Path, "/"), m)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return &u
}

func (s *HTTPStore) Location() string { return s.base.String() }

// Download fetches the archive, retrying network errors and 5xx responses.
func (s *HTTPStore) Download(ctx context.Context, m content.Marketplace, dest string) error {
	return cache.Retry(ctx, s.attempts, s.delay, func() error {
		resp, err := s.do(ctx, http.MethodGet, m, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp.StatusCode, m); err != nil {
			return err
		}
		if err := writeAtomic(dest, resp.Body); err != nil {
			return cache.Retryable(err)
		}
		return nil
	})
}

// Upload sends the archive with PUT.
func (s *HTTPStore) Upload(ctx context.Context, m content.Marketplace, src string) error {
	return cache.Retry(ctx, s.attempts, s.delay, func() error {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		resp, err := s.do(ctx, http.MethodPut, m, f)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		return checkStatus(resp.StatusCode, m)
	})
}

// Revision returns the ETag, falling back to Last-Modified.
func (s *HTTPStore) Revision(ctx context.Context, m content.Marketplace) (string, error) {
	var rev string
	err := cache.Retry(ctx, s.attempts, s.delay, func() error {
		resp, err := s.do(ctx, http.MethodHead, m, nil)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if err := checkStatus(resp.StatusCode, m); err != nil {
			return err
		}
		rev = resp.Header.Get("ETag")
		if rev == "" {
			rev = resp.Header.Get("Last-Modified")
		}
		return nil
	})
	return rev, err
}

func (s *HTTPStore) do(ctx context.Context, method string, m content.Marketplace, body io.Reader) (*http.Response, error) {
	u := s.url(m)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if method == http.MethodPut {
		req.Header.Set("Content-Type", "application/zip")
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, method, u.Host, u.Path)
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		hooks.OnError(ctx, method, u.Host, u.Path, err)
		return nil, cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
	}
	hooks.OnResponse(ctx, method, u.Host, u.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}

func checkStatus(code int, m content.Marketplace) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, m)
	case code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", cache.ErrNetwork, code)
	}
}
