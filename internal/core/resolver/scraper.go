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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// BrowserSession is one isolated headless browser.
type BrowserSession interface {
	// Navigate loads pageURL and waits for the load event.
	Navigate(ctx context.Context, pageURL string) error
	// WaitReady waits until the element matching selector is ready.
	WaitReady(ctx context.Context, selector string) error
	// Evaluate runs a script expression and returns its string result.
	Evaluate(ctx context.Context, expression string) (string, error)
	// Close terminates the browser and its processes.
	Close() error
}

// BrowserLauncher starts a new BrowserSession.
type BrowserLauncher func(ctx context.Context, cfg cloud.Scraper) (BrowserSession, error)

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// LaunchChrome starts a headless Chrome through chromedp. The browser lives
// until Close is called, independent of ctx.
func LaunchChrome(ctx context.Context, cfg cloud.Scraper) (BrowserSession, error) {
	width, height := cfg.WindowWidth, cfg.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(defaultUserAgent),
	)
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, err
	}
	return &chromeSession{ctx: browserCtx, cancel: cancel}, nil
}

// run executes actions on the browser, bounded by ctx's deadline and
// cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, pageURL string) error {
	return s.run(ctx, chromedp.Navigate(pageURL))
}

func (s *chromeSession) WaitReady(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *chromeSession) Evaluate(ctx context.Context, expression string) (string, error) {
	var out string
	err := s.run(ctx, chromedp.Evaluate(expression, &out))
	return out, err
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

// Scraper discovers the media URL of an embed page by reading a page global
// in a headless browser, then downloads it.
type Scraper struct {
	cfg        cloud.Scraper
	launch     BrowserLauncher
	downloader *Downloader
	now        func() time.Time
}

// globalExpression wraps a page global so evaluation never throws: it yields
// the JSON of the value, or "" when the global is missing.
func globalExpression(global string) string {
	return fmt.Sprintf(`(() => { try { const v = (%s); return (v === undefined || v === null) ? "" : JSON.stringify(v); } catch (e) { return ""; } })()`, global)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Scrape resolves pageURL to an in-memory video. The browser session is
// closed on every return path, including panics.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*model.InlineBytes, error) {
	session, err := s.launch(ctx, s.cfg)
	if err != nil {
		return nil, apierr.BrowserFailed(fmt.Errorf("failed to start browser: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to close browser session", "error", cerr)
		}
	}()

	navCtx, cancel := withTimeout(ctx, s.cfg.PageLoadTimeout.Duration)
	err = session.Navigate(navCtx, pageURL)
	cancel()
	if err != nil {
		return nil, apierr.BrowserFailed(fmt.Errorf("failed to load %s: %w", pageURL, err))
	}

	waitCtx, cancel := withTimeout(ctx, s.cfg.ElementWait.Duration)
	err = session.WaitReady(waitCtx, "body")
	cancel()
	if err != nil {
		return nil, apierr.BrowserFailed(fmt.Errorf("page %s never became ready: %w", pageURL, err))
	}

	if d := s.cfg.SettleDelay.Duration; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, apierr.BrowserFailed(ctx.Err())
		}
	}

	var raw string
	for _, global := range s.cfg.Globals {
		raw, err = session.Evaluate(ctx, globalExpression(global))
		if err != nil {
			return nil, apierr.BrowserFailed(fmt.Errorf("failed to evaluate %s: %w", global, err))
		}
		if raw != "" {
			break
		}
		slog.DebugContext(ctx, "page global not found", "global", global, "page", pageURL)
	}
	if raw == "" {
		return nil, apierr.ScrapeFailed("could not find video sources on %s", pageURL)
	}

	src, err := selectVideoSource(raw)
	if err != nil {
		return nil, err
	}
	mediaURL, err := resolveReference(pageURL, src)
	if err != nil {
		return nil, apierr.ScrapeFailed("invalid video source %q: %v", src, err)
	}
	slog.InfoContext(ctx, "found embedded video", "page", pageURL, "media", mediaURL)

	dl, err := s.downloader.Fetch(ctx, mediaURL, http.Header{
		"Referer":         {pageURL},
		"Accept-Encoding": {"identity"},
	})
	if err != nil {
		return nil, err
	}

	filename := scrapedFilename(mediaURL, s.now())
	return &model.InlineBytes{
		Filename:    filename,
		ContentType: DetectContentType(dl.Data, dl.ContentType, filename, "video/mp4"),
		Data:        dl.Data,
	}, nil
}

// selectVideoSource reads videoSources from the scraped JSON and returns the
// src of the first video/mp4 entry, or of the first entry with any src.
// Nothing about the shape is assumed.
func selectVideoSource(raw string) (string, error) {
	var options map[string]any
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return "", apierr.ScrapeFailed("video options are not an object: %v", err)
	}
	sources, ok := options["videoSources"].([]any)
	if !ok || len(sources) == 0 {
		return "", apierr.ScrapeFailed("video options carry no videoSources")
	}

	first := ""
	for _, entry := range sources {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		src, _ := m["src"].(string)
		if src == "" {
			continue
		}
		if typ, _ := m["type"].(string); typ == "video/mp4" {
			return src, nil
		}
		if first == "" {
			first = src
		}
	}
	if first == "" {
		return "", apierr.ScrapeFailed("no video source has a src")
	}
	return first, nil
}

func resolveReference(pageURL, src string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	out := base.ResolveReference(ref)
	if out.Scheme != "http" && out.Scheme != "https" {
		return "", errors.New("unsupported scheme")
	}
	return out.String(), nil
}

// scrapedFilename is the last path segment of mediaURL, or a generated name
// when the segment is empty or has no extension.
func scrapedFilename(mediaURL string, now time.Time) string {
	name := cloud.LastPathSegment(mediaURL)
	if name == "" || path.Ext(name) == "" {
		return fmt.Sprintf("citnow_video_%d.mp4", now.Unix())
	}
	return name
}
