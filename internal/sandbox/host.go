package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// fetch performs a bounded GET on behalf of a snippet.
func (s *Sandbox) fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if err := s.permit(u); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", u.Hostname(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxFetchBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > s.opts.MaxFetchBytes {
		return "", fmt.Errorf("fetch %s: response exceeds %d bytes", u.Hostname(), s.opts.MaxFetchBytes)
	}

	return string(body), nil
}

// permit checks u against the scheme and host allow-list.
func (s *Sandbox) permit(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrFetchDenied, u.Scheme)
	}
	if !s.fetchHost[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("%w: host %q", ErrFetchDenied, u.Hostname())
	}
	return nil
}

// resource reads a named resource from the configured allow-list.
func (s *Sandbox) resource(name string) (string, error) {
	p, ok := s.opts.Resources[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrResourceDenied, name)
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("resource %q: %w", name, err)
	}
	if info.Size() > s.opts.MaxFetchBytes {
		return "", fmt.Errorf("resource %q exceeds %d bytes", name, s.opts.MaxFetchBytes)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("resource %q: %w", name, err)
	}
	return string(data), nil
}
