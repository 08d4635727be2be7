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

// Package resolver turns a caller-supplied video source into a
// model.VideoReference.
//
// Sources are matched in a fixed order: a gs:// URI is passed through
// untouched, YouTube links are extracted, embed pages are scraped in a
// headless browser, direct links to video files are downloaded and uploads
// are checked against the allowed content types. Each strategy can be
// switched off in the configuration; a URL no enabled strategy accepts is
// rejected.
package resolver

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// Strategy names as used in the [sources] configuration.
const (
	StrategyStorage = "storage"
	StrategyYouTube = "youtube"
	StrategyEmbed   = "embed"
	StrategyDirect  = "direct"
	StrategyUpload  = "upload"
)

// AllStrategies is the default set when the configuration lists none.
var AllStrategies = []string{StrategyStorage, StrategyYouTube, StrategyEmbed, StrategyDirect, StrategyUpload}

const unrecognizedURLMessage = "URL must be a GCS, YouTube, embed page or direct video link."

// Resolver classifies and resolves video sources. It is safe for concurrent
// use; every call owns its own resources.
type Resolver struct {
	sources    cloud.Sources
	enabled    map[string]bool
	downloader *Downloader
	youtube    YouTubeClient
	scraper    *Scraper
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithYouTubeClient replaces the YouTube client.
func WithYouTubeClient(c YouTubeClient) Option {
	return func(r *Resolver) { r.youtube = c }
}

// WithBrowserLauncher replaces the headless browser launcher.
func WithBrowserLauncher(l BrowserLauncher) Option {
	return func(r *Resolver) { r.scraper.launch = l }
}

// WithClock replaces the clock used for generated filenames.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.scraper.now = now }
}

// NewResolver builds a Resolver from the configuration.
func NewResolver(config *cloud.Config, opts ...Option) (*Resolver, error) {
	downloader, err := NewDownloader(config.Download)
	if err != nil {
		return nil, err
	}

	strategies := config.Sources.Strategies
	if len(strategies) == 0 {
		strategies = AllStrategies
	}
	enabled := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		enabled[strings.ToLower(strings.TrimSpace(s))] = true
	}

	sources := config.Sources
	if len(sources.YouTubeHosts) == 0 {
		sources.YouTubeHosts = []string{"youtube.com", "youtu.be"}
	}
	if len(sources.EmbedHosts) == 0 {
		sources.EmbedHosts = []string{"citnow.com"}
	}
	if len(sources.DirectExtensions) == 0 {
		sources.DirectExtensions = []string{".mp4", ".webm", ".mov", ".mkv", ".avi"}
	}

	r := &Resolver{
		sources:    sources,
		enabled:    enabled,
		downloader: downloader,
		youtube:    NewYouTubeClient(downloader.client.HTTPClient),
		scraper: &Scraper{
			cfg:        config.Scraper,
			launch:     LaunchChrome,
			downloader: downloader,
			now:        time.Now,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Downloader exposes the shared HTTP downloader.
func (r *Resolver) Downloader() *Downloader {
	return r.downloader
}

// Classify returns the strategy that would handle req without performing any
// I/O. The request must already hold exactly one source.
func (r *Resolver) Classify(req *model.AnalysisRequest) (string, error) {
	if req.File != nil {
		if !r.enabled[StrategyUpload] {
			return "", apierr.InvalidInput("file uploads are disabled")
		}
		return StrategyUpload, nil
	}

	if embedded := strings.TrimSpace(req.EmbeddedURL); embedded != "" {
		if !r.enabled[StrategyEmbed] || !isHTTPURL(embedded) {
			return "", apierr.UnrecognizedURL(unrecognizedURLMessage)
		}
		return StrategyEmbed, nil
	}

	raw := strings.TrimSpace(req.URL)
	if cloud.IsStorageURI(raw) {
		if !r.enabled[StrategyStorage] {
			return "", apierr.UnrecognizedURL(unrecognizedURLMessage)
		}
		if _, err := cloud.ParseStorageURI(raw); err != nil {
			return "", apierr.UnrecognizedURL("%v", err)
		}
		return StrategyStorage, nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", apierr.UnrecognizedURL(unrecognizedURLMessage)
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case r.enabled[StrategyYouTube] && matchHost(host, r.sources.YouTubeHosts):
		return StrategyYouTube, nil
	case r.enabled[StrategyEmbed] && matchHost(host, r.sources.EmbedHosts):
		return StrategyEmbed, nil
	case r.enabled[StrategyDirect] && hasExtension(u.Path, r.sources.DirectExtensions):
		return StrategyDirect, nil
	}
	return "", apierr.UnrecognizedURL(unrecognizedURLMessage)
}

// Resolve produces the video reference for req. A storage URI is returned
// as-is without any I/O; every other source yields InlineBytes no larger than
// the download cap.
func (r *Resolver) Resolve(ctx context.Context, req *model.AnalysisRequest) (model.VideoReference, error) {
	ref, _, err := r.ResolveSource(ctx, req)
	return ref, err
}

// ResolveSource is Resolve that also reports the strategy that handled req.
func (r *Resolver) ResolveSource(ctx context.Context, req *model.AnalysisRequest) (model.VideoReference, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}
	strategy, err := r.Classify(req)
	if err != nil {
		return nil, "", err
	}

	var ref model.VideoReference
	switch strategy {
	case StrategyStorage:
		ref, err = model.StorageURI{URI: strings.TrimSpace(req.URL)}, nil
	case StrategyYouTube:
		ref, err = inline(r.fromYouTube(ctx, strings.TrimSpace(req.URL)))
	case StrategyEmbed:
		page := strings.TrimSpace(req.EmbeddedURL)
		if page == "" {
			page = strings.TrimSpace(req.URL)
		}
		ref, err = inline(r.scraper.Scrape(ctx, page))
	case StrategyDirect:
		ref, err = inline(r.fromDirect(ctx, strings.TrimSpace(req.URL)))
	case StrategyUpload:
		ref, err = inline(r.fromUpload(req.File))
	default:
		err = fmt.Errorf("unhandled source strategy %q", strategy)
	}
	if err != nil {
		return nil, "", err
	}
	return ref, strategy, nil
}

// inline keeps a nil *InlineBytes from becoming a non-nil VideoReference.
func inline(b *model.InlineBytes, err error) (model.VideoReference, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Resolver) fromDirect(ctx context.Context, rawURL string) (*model.InlineBytes, error) {
	dl, err := r.downloader.Fetch(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(path.Ext(cloud.LastPathSegment(rawURL)))
	if ext == "" {
		ext = r.defaultExtension()
	}
	filename := fmt.Sprintf("direct_upload_%s%s", uuid.NewString(), ext)
	return &model.InlineBytes{
		Filename:    filename,
		ContentType: DetectContentType(dl.Data, dl.ContentType, filename, r.defaultContentType()),
		Data:        dl.Data,
	}, nil
}

// fromUpload checks the declared content type before reading anything.
func (r *Resolver) fromUpload(file *model.FileUpload) (*model.InlineBytes, error) {
	contentType := normalizeMediaType(file.ContentType)
	if !slices.Contains(r.uploadContentTypes(), contentType) {
		return nil, apierr.UnsupportedMediaType("unsupported file type %q, allowed types are %s",
			file.ContentType, strings.Join(r.uploadContentTypes(), ", "))
	}

	maxBytes := r.downloader.MaxBytes()
	if file.Size > maxBytes {
		return nil, apierr.TooLarge(maxBytes)
	}
	if file.Open == nil {
		return nil, apierr.InvalidInput("uploaded file cannot be read")
	}
	rc, err := file.Open()
	if err != nil {
		return nil, apierr.InvalidInput("failed to open uploaded file: %v", err)
	}
	defer rc.Close()

	data, err := ReadLimited(rc, maxBytes)
	if err != nil {
		return nil, err
	}

	filename := path.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	if filename == "." || filename == "/" || filename == "" {
		filename = "upload_" + uuid.NewString() + r.defaultExtension()
	}
	return &model.InlineBytes{Filename: filename, ContentType: contentType, Data: data}, nil
}

func (r *Resolver) uploadContentTypes() []string {
	if len(r.sources.UploadContentTypes) == 0 {
		return []string{"video/mp4", "video/mkv", "video/avi"}
	}
	return r.sources.UploadContentTypes
}

func (r *Resolver) defaultContentType() string {
	if r.sources.DefaultContentType == "" {
		return "video/mp4"
	}
	return r.sources.DefaultContentType
}

func (r *Resolver) defaultExtension() string {
	if r.sources.DefaultFileExtension == "" {
		return ".mp4"
	}
	return r.sources.DefaultFileExtension
}

func normalizeMediaType(in string) string {
	if mt, _, err := mime.ParseMediaType(in); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(in))
}

// matchHost reports whether host equals one of hosts or is a subdomain of it.
func matchHost(host string, hosts []string) bool {
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func hasExtension(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}
