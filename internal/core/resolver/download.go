// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
)

const (
	defaultMaxBytes  = 100 << 20
	defaultTimeout   = 120 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptVideo      = "video/webm,video/ogg,video/*;q=0.9,application/ogg;q=0.7,audio/*;q=0.6,*/*;q=0.5"
)

// Downloader fetches videos over HTTP with bounded retries, a wall-clock
// timeout and a size cap. It is safe for concurrent use.
type Downloader struct {
	client    *retryablehttp.Client
	maxBytes  int64
	timeout   time.Duration
	userAgent string
}

// Download is the body of a successful fetch.
type Download struct {
	Data        []byte
	ContentType string // As declared by the server, may be empty.
	FinalURL    string // After redirects.
}

// NewDownloader builds a Downloader from the download settings. Zero values
// fall back to a 100 MiB cap, a 120 s timeout and three retries.
func NewDownloader(cfg cloud.Download) (*Downloader, error) {
	client := retryablehttp.NewClient()
	client.Logger = slog.Default()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin.Duration > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin.Duration
	}
	if cfg.RetryWaitMax.Duration > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax.Duration
	}
	retryOn := cfg.RetryStatusCodes
	if len(retryOn) == 0 {
		retryOn = []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	}
	client.CheckRetry = statusRetryPolicy(retryOn)
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.ProxyURL, err)
		}
		transport, ok := client.HTTPClient.Transport.(*http.Transport)
		if !ok {
			return nil, errors.New("unexpected transport type for proxy configuration")
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	d := &Downloader{
		client:    client,
		maxBytes:  cfg.MaxBytes,
		timeout:   cfg.Timeout.Duration,
		userAgent: cfg.UserAgent,
	}
	if d.maxBytes <= 0 {
		d.maxBytes = defaultMaxBytes
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	if d.userAgent == "" {
		d.userAgent = defaultUserAgent
	}
	return d, nil
}

// statusRetryPolicy retries transport errors and the listed status codes.
func statusRetryPolicy(codes []int) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return slices.Contains(codes, resp.StatusCode), nil
	}
}

// MaxBytes is the size cap applied to every download.
func (d *Downloader) MaxBytes() int64 {
	return d.maxBytes
}

// Fetch downloads rawURL into memory. header is merged over the default
// browser-like headers. Bodies over the cap fail with a TooLarge error and
// the partial data is discarded.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, header http.Header) (*Download, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apierr.DownloadFailed(fmt.Errorf("invalid download url: %w", err))
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", acceptVideo)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apierr.DownloadFailed(fmt.Errorf("failed to download video: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.DownloadFailed(fmt.Errorf("failed to download video: %s returned %s", rawURL, resp.Status))
	}
	if resp.ContentLength > d.maxBytes {
		return nil, apierr.TooLarge(d.maxBytes)
	}

	data, err := ReadLimited(resp.Body, d.maxBytes)
	if err != nil {
		return nil, err
	}

	out := &Download{Data: data, ContentType: resp.Header.Get("Content-Type"), FinalURL: rawURL}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}
	return out, nil
}

// ReachabilityResult is the outcome of a connectivity check against one URL.
type ReachabilityResult struct {
	URL       string `json:"url"`
	Status    int    `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// CheckURL issues a single GET without reading the body, using the same
// transport, proxy and headers as Fetch.
func (d *Downloader) CheckURL(ctx context.Context, rawURL string) ReachabilityResult {
	start := time.Now()
	out := ReachabilityResult{URL: rawURL}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.HTTPClient.Do(req)
	out.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		out.Error = err.Error()
		return out
	}
	_ = resp.Body.Close()
	out.Status = resp.StatusCode
	return out
}

// ReadLimited reads r fully unless it holds more than limit bytes, in which
// case it fails with a TooLarge error.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, apierr.DownloadFailed(fmt.Errorf("failed to read video: %w", err))
	}
	if int64(len(data)) > limit {
		return nil, apierr.TooLarge(limit)
	}
	return data, nil
}

// DetectContentType picks a video MIME type for data: the sniffed type when
// it is a video, then the declared type, then the type registered for the
// file extension, then fallback.
func DetectContentType(data []byte, declared, filename, fallback string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown && strings.HasPrefix(kind.MIME.Value, "video/") {
		return kind.MIME.Value
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "video/") {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); strings.HasPrefix(mt, "video/") {
		return mt
	}
	return fallback
}
