package remotefs

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPFetcher fetches byte ranges of URLs with HTTP Range requests. Paths
// given to it are full URLs.
type HTTPFetcher struct {
	// Client is the http client used to access urls, http.DefaultClient if nil
	Client *http.Client

	// Header is added to every request (authorization, user agent...)
	Header http.Header
}

// NewHTTPFetcher returns a fetcher using client, or http.DefaultClient if
// client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

func (h *HTTPFetcher) do(ctx context.Context, method, url string, header map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range h.Header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// Length issues a HEAD request and returns the Content-Length of url.
func (h *HTTPFetcher) Length(ctx context.Context, url string) (int64, error) {
	res, err := h.do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound, res.StatusCode == http.StatusGone:
		return 0, fmt.Errorf("%w: %s: %s", ErrNotFound, url, res.Status)
	case res.StatusCode > 299:
		return 0, fmt.Errorf("HTTP HEAD %s failed: %s", url, res.Status)
	}

	// ranges of a compressed body are ranges of the compressed bytes
	if res.Header.Get("Content-Encoding") == "gzip" {
		return 0, fmt.Errorf("HTTP HEAD %s: server uses gzip encoding", url)
	}
	if res.ContentLength == -1 {
		return 0, fmt.Errorf("HTTP HEAD %s: response has no Content-Length", url)
	}

	return res.ContentLength, nil
}

// Fetch issues a GET request for bytes [from, to) of url. A server ignoring
// the Range header is tolerated: the leading bytes are dropped.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string, from, to int64) ([]byte, error) {
	if from < 0 || to <= from {
		return nil, fmt.Errorf("%w: [%d, %d) of %s", ErrInvalidRange, from, to, url)
	}

	res, err := h.do(ctx, http.MethodGet, url, map[string]string{
		"Range": fmt.Sprintf("bytes=%d-%d", from, to-1),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusPartialContent:
		if err := checkContentRange(res.Header.Get("Content-Range"), from, to); err != nil {
			return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
		}
	case http.StatusOK:
		// no range support, drop that amount of data to reach from
		if from > 0 {
			if _, err := io.CopyN(io.Discard, res.Body, from); err != nil {
				return nil, fmt.Errorf("HTTP GET %s: skipping to byte %d: %w", url, from, err)
			}
		}
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%w: %s: %s", ErrNotFound, url, res.Status)
	default:
		return nil, fmt.Errorf("failed to download %s: %s", url, res.Status)
	}

	buf := make([]byte, to-from)
	if _, err := io.ReadFull(res.Body, buf); err != nil {
		return nil, fmt.Errorf("HTTP GET %s [%d, %d): %w", url, from, to, err)
	}
	return buf, nil
}

// checkContentRange makes sure a partial reply holds bytes [from, to).
func checkContentRange(cr string, from, to int64) error {
	var start, end int64
	if _, err := fmt.Sscanf(cr, "bytes %d-%d/", &start, &end); err != nil {
		return fmt.Errorf("%w: bad Content-Range %q: %w", ErrTransfer, cr, err)
	}
	if start != from || end != to-1 {
		return fmt.Errorf("%w: Content-Range %q does not match bytes %d-%d", ErrTransfer, cr, from, to-1)
	}
	return nil
}
