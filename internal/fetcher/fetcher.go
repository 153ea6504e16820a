// Package fetcher is the shared HTTP client for every scraping strategy.
// It centralizes timeout, cancellation, user-agent and decompression
// handling so strategies only deal with bodies.
package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/powderline/powderline/internal/types"
)

// DefaultTimeout caps a single fetch unless the request overrides it.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is a desktop-browser user agent. Several resort sites
// serve stripped pages to obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultMaxBodySize = 10 * 1024 * 1024 // 10MB

// Request describes one fetch.
type Request struct {
	URL     string
	Method  string // defaults to GET
	Headers map[string]string
	Body    []byte
	Timeout time.Duration // defaults to DefaultTimeout
}

// Response is the fully-read result of a fetch.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string
}

// Fetcher wraps net/http with the engine's fetch contract.
type Fetcher struct {
	client      *http.Client
	timeout     time.Duration
	maxBodySize int64
	userAgent   string
	logger      *slog.Logger
}

// New creates a Fetcher with pooled connections.
func New(opts Options, logger *slog.Logger) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // we handle decompression ourselves (including brotli)
	}

	return &Fetcher{
		client:      &http.Client{Transport: transport},
		timeout:     timeout,
		maxBodySize: maxBody,
		userAgent:   ua,
		logger:      logger.With("component", "fetcher"),
	}
}

// Fetch executes one request. Failures are classified as network_error,
// timeout, cancelled, or upstream_error (HTTP >= 400).
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &types.ScrapeError{URL: req.URL, Kind: types.KindNetwork, Err: err}
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, classify(req.URL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &types.ScrapeError{
			URL:        req.URL,
			Kind:       types.KindUpstream,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	reader, err := decompressReader(httpResp, io.LimitReader(httpResp.Body, f.maxBodySize))
	if err != nil {
		return nil, &types.ScrapeError{URL: req.URL, Kind: types.KindParse, Err: err}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, classify(req.URL, err)
	}

	f.logger.Debug("fetch complete",
		"url", req.URL,
		"status", httpResp.StatusCode,
		"size", len(data),
		"duration", duration,
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   duration,
	}, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// classify maps transport errors onto the engine's error kinds.
func classify(url string, err error) *types.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &types.ScrapeError{URL: url, Kind: types.KindTimeout, Err: types.ErrTimeout}
	case errors.Is(err, context.Canceled):
		return &types.ScrapeError{URL: url, Kind: types.KindCancelled, Err: types.ErrCancelled}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &types.ScrapeError{URL: url, Kind: types.KindTimeout, Err: types.ErrTimeout}
	}
	return &types.ScrapeError{URL: url, Kind: types.KindNetwork, Err: err}
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
