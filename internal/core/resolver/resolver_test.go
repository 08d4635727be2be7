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

package resolver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/resolver"
	test "github.com/jaycherian/gcp-go-video-analyzer/internal/testutil"
	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *cloud.Config {
	cfg := cloud.NewConfig()
	cfg.Download.MaxBytes = 1024
	cfg.Download.RetryMax = 2
	cfg.Download.RetryWaitMin = cloud.Duration{Duration: time.Millisecond}
	cfg.Download.RetryWaitMax = cloud.Duration{Duration: 5 * time.Millisecond}
	cfg.Sources.UploadContentTypes = []string{"video/mp4", "video/mkv", "video/avi"}
	cfg.Scraper.Globals = []string{"videoOptions", "window.videoOptions"}
	return cfg
}

// panicLauncher fails the test if the scraping strategy is reached.
func panicLauncher(t *testing.T) resolver.BrowserLauncher {
	return func(context.Context, cloud.Scraper) (resolver.BrowserSession, error) {
		t.Fatal("browser must not be launched")
		return nil, nil
	}
}

type fakeYouTube struct {
	video  *youtube.Video
	stream []byte
	err    error
	called atomic.Int32
	chosen *youtube.Format
}

func (f *fakeYouTube) GetVideoContext(context.Context, string) (*youtube.Video, error) {
	f.called.Add(1)
	return f.video, f.err
}

func (f *fakeYouTube) GetStreamContext(_ context.Context, _ *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	f.chosen = format
	return io.NopCloser(bytes.NewReader(f.stream)), int64(len(f.stream)), nil
}

type fakeSession struct {
	globals     map[string]string
	navigateErr error
	panicOnEval bool
	closed      atomic.Int32
	evaluated   []string
}

func (s *fakeSession) Navigate(context.Context, string) error { return s.navigateErr }

func (s *fakeSession) WaitReady(context.Context, string) error { return nil }

func (s *fakeSession) Evaluate(_ context.Context, expression string) (string, error) {
	if s.panicOnEval {
		panic("page crashed")
	}
	s.evaluated = append(s.evaluated, expression)
	for global, value := range s.globals {
		if strings.Contains(expression, "const v = ("+global+")") {
			return value, nil
		}
	}
	return "", nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

func launcherFor(s *fakeSession) resolver.BrowserLauncher {
	return func(context.Context, cloud.Scraper) (resolver.BrowserSession, error) {
		return s, nil
	}
}

func newResolver(t *testing.T, cfg *cloud.Config, opts ...resolver.Option) *resolver.Resolver {
	t.Helper()
	r, err := resolver.NewResolver(cfg, opts...)
	require.NoError(t, err)
	return r
}

func statusOf(err error) int {
	return apierr.From(err).Status
}

func TestStorageURIIsPassedThroughWithoutIO(t *testing.T) {
	yt := &fakeYouTube{}
	r := newResolver(t, testConfig(), resolver.WithYouTubeClient(yt), resolver.WithBrowserLauncher(panicLauncher(t)))

	ref, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: "gs://bucket/folder/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, model.StorageURI{URI: "gs://bucket/folder/a.mp4"}, ref)
	assert.Zero(t, yt.called.Load())
}

func TestUnrecognizedURLIsBadRequest(t *testing.T) {
	r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(panicLauncher(t)))

	for _, u := range []string{"ftp://example.com/a.mp4", "https://example.com/page", "not a url", "gs://bucket-only"} {
		_, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: u})
		require.Error(t, err, u)
		assert.Equal(t, http.StatusBadRequest, statusOf(err), u)
		assert.True(t, apierr.IsCode(err, apierr.CodeInvalidInput), u)
	}
}

func TestResolveRejectsSeveralSources(t *testing.T) {
	r := newResolver(t, testConfig())
	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{
		URL:  "gs://bucket/a.mp4",
		File: &model.FileUpload{Filename: "a.mp4", ContentType: "video/mp4"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(err))
}

func TestUploadWithUnsupportedTypeIsRejectedBeforeReading(t *testing.T) {
	r := newResolver(t, testConfig())
	opened := false
	file := &model.FileUpload{
		Filename:    "clip.mov",
		ContentType: "video/quicktime",
		Open: func() (io.ReadCloser, error) {
			opened = true
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}

	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{File: file})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeUnsupportedMediaType))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.False(t, opened)
}

func TestUploadIsReturnedUnchanged(t *testing.T) {
	r := newResolver(t, testConfig())
	file := &model.FileUpload{
		Filename:    "../clip.mp4",
		ContentType: "video/mp4",
		Size:        5,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}

	ref, err := r.Resolve(context.Background(), &model.AnalysisRequest{File: file})
	require.NoError(t, err)
	inline, ok := ref.(*model.InlineBytes)
	require.True(t, ok)
	assert.Equal(t, "clip.mp4", inline.Filename)
	assert.Equal(t, "video/mp4", inline.ContentType)
	assert.Equal(t, []byte("hello"), inline.Data)
}

func TestUploadOverCapIsTooLarge(t *testing.T) {
	r := newResolver(t, testConfig())
	file := &model.FileUpload{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(make([]byte, 2048))), nil
		},
	}

	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{File: file})
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(err))
}

func TestDirectDownloadRetriesAndNamesFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("not really a video"))
	}))
	defer srv.Close()

	r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(panicLauncher(t)))
	ref, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: srv.URL + "/media/clip.mp4"})
	require.NoError(t, err)

	inline := ref.(*model.InlineBytes)
	assert.True(t, strings.HasPrefix(inline.Filename, "direct_upload_"))
	assert.True(t, strings.HasSuffix(inline.Filename, ".mp4"))
	assert.Equal(t, "video/mp4", inline.ContentType)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDirectDownloadOverCapIsTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flushing early leaves the length undeclared.
		for i := 0; i < 4; i++ {
			_, _ = w.Write(make([]byte, 512))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	r := newResolver(t, testConfig())
	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: srv.URL + "/clip.mp4"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(err))
}

func TestDirectDownloadFailureIsBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := newResolver(t, testConfig())
	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: srv.URL + "/missing.mp4"})
	assert.True(t, apierr.IsCode(err, apierr.CodeDownloadFailed))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestYouTubePicksHighestProgressiveMP4(t *testing.T) {
	yt := &fakeYouTube{
		video: &youtube.Video{
			ID:    "abc",
			Title: "Ford Focus: service/check",
			Formats: youtube.FormatList{
				{ItagNo: 18, MimeType: `video/mp4; codecs="avc1"`, Height: 360, AudioChannels: 2},
				{ItagNo: 137, MimeType: `video/mp4; codecs="avc1"`, Height: 1080},
				{ItagNo: 22, MimeType: `video/mp4; codecs="avc1"`, Height: 720, AudioChannels: 2},
				{ItagNo: 43, MimeType: `video/webm; codecs="vp8"`, Height: 1080, AudioChannels: 2},
			},
		},
		stream: []byte("stream"),
	}
	r := newResolver(t, testConfig(), resolver.WithYouTubeClient(yt))

	ref, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: "https://www.youtube.com/watch?v=abc"})
	require.NoError(t, err)

	inline := ref.(*model.InlineBytes)
	require.NotNil(t, yt.chosen)
	assert.Equal(t, 22, yt.chosen.ItagNo)
	assert.Equal(t, "video/mp4", inline.ContentType)
	assert.Equal(t, "Ford Focus servicecheck.mp4", inline.Filename)
	assert.Equal(t, []byte("stream"), inline.Data)
}

func TestYouTubeWithoutProgressiveStreamFails(t *testing.T) {
	yt := &fakeYouTube{video: &youtube.Video{ID: "abc", Formats: youtube.FormatList{
		{ItagNo: 137, MimeType: "video/mp4", Height: 1080},
	}}}
	r := newResolver(t, testConfig(), resolver.WithYouTubeClient(yt))

	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: "https://youtu.be/abc"})
	assert.True(t, apierr.IsCode(err, apierr.CodeDownloadFailed))
}

func TestDisabledStrategyIsNotMatched(t *testing.T) {
	cfg := testConfig()
	cfg.Sources.Strategies = []string{"storage", "upload"}
	yt := &fakeYouTube{}
	r := newResolver(t, cfg, resolver.WithYouTubeClient(yt))

	_, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: "https://www.youtube.com/watch?v=abc"})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Zero(t, yt.called.Load())
}

func TestScrapeDownloadsSelectedSourceWithReferer(t *testing.T) {
	var referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("video"))
	}))
	defer srv.Close()

	session := &fakeSession{globals: map[string]string{
		"window.videoOptions": `{"videoSources":[{"type":"video/webm","src":"` + srv.URL + `/v.webm"},{"type":"video/mp4","src":"` + srv.URL + `/path/final.mp4?sig=1"}]}`,
	}}
	r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(launcherFor(session)))

	page := "https://www.citnow.com/abc123"
	ref, err := r.Resolve(context.Background(), &model.AnalysisRequest{EmbeddedURL: page})
	require.NoError(t, err)

	inline := ref.(*model.InlineBytes)
	assert.Equal(t, "final.mp4", inline.Filename)
	assert.Equal(t, []byte("video"), inline.Data)
	assert.Equal(t, page, referer)
	assert.Len(t, session.evaluated, 2)
	assert.Equal(t, int32(1), session.closed.Load())
}

func TestScrapeUsesGeneratedNameWithoutExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video"))
	}))
	defer srv.Close()

	session := &fakeSession{globals: map[string]string{
		"videoOptions": `{"videoSources":[{"src":"` + srv.URL + `/stream"}]}`,
	}}
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(launcherFor(session)), resolver.WithClock(clock))

	ref, err := r.Resolve(context.Background(), &model.AnalysisRequest{URL: "https://citnow.com/xyz"})
	require.NoError(t, err)
	assert.Equal(t, "citnow_video_1700000000.mp4", ref.(*model.InlineBytes).Filename)
	assert.Equal(t, int32(1), session.closed.Load())
}

func TestScrapeClosesSessionOnEveryPath(t *testing.T) {
	t.Run("no video options", func(t *testing.T) {
		session := &fakeSession{}
		r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(launcherFor(session)))

		_, err := r.Resolve(context.Background(), &model.AnalysisRequest{EmbeddedURL: "https://citnow.com/x"})
		assert.True(t, apierr.IsCode(err, apierr.CodeScrapeFailed))
		assert.Equal(t, http.StatusBadRequest, statusOf(err))
		assert.Equal(t, int32(1), session.closed.Load())
	})

	t.Run("navigation failure", func(t *testing.T) {
		session := &fakeSession{navigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
		r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(launcherFor(session)))

		_, err := r.Resolve(context.Background(), &model.AnalysisRequest{EmbeddedURL: "https://citnow.com/x"})
		assert.Equal(t, http.StatusInternalServerError, statusOf(err))
		assert.Equal(t, int32(1), session.closed.Load())
	})

	t.Run("panic", func(t *testing.T) {
		session := &fakeSession{panicOnEval: true}
		r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(launcherFor(session)))

		assert.Panics(t, func() {
			_, _ = r.Resolve(context.Background(), &model.AnalysisRequest{EmbeddedURL: "https://citnow.com/x"})
		})
		assert.Equal(t, int32(1), session.closed.Load())
	})

	t.Run("download over cap", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(make([]byte, 4096))
		}))
		defer srv.Close()
		session := &fakeSession{globals: map[string]string{
			"videoOptions": `{"videoSources":[{"type":"video/mp4","src":"` + srv.URL + `/a.mp4"}]}`,
		}}
		r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(launcherFor(session)))

		_, err := r.Resolve(context.Background(), &model.AnalysisRequest{EmbeddedURL: "https://citnow.com/x"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(err))
		assert.Equal(t, int32(1), session.closed.Load())
	})
}

func TestClassify(t *testing.T) {
	r := newResolver(t, testConfig())
	cases := map[string]string{
		"gs://b/f/a.mp4":                    resolver.StrategyStorage,
		"https://m.youtube.com/watch?v=x":   resolver.StrategyYouTube,
		"https://youtu.be/x":                resolver.StrategyYouTube,
		"https://citnow.com/abc":            resolver.StrategyEmbed,
		"https://cdn.example.com/x/a.WEBM":  resolver.StrategyDirect,
		"http://cdn.example.com/x/a.mp4?x=": resolver.StrategyDirect,
	}
	for in, want := range cases {
		got, err := r.Classify(&model.AnalysisRequest{URL: in})
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestResolveSourceReportsStrategyOfTheResolvedReference(t *testing.T) {
	r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(panicLauncher(t)))

	ref, strategy, err := r.ResolveSource(context.Background(), &model.AnalysisRequest{URL: "gs://b/f/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, resolver.StrategyStorage, strategy)
	assert.Equal(t, model.StorageURI{URI: "gs://b/f/a.mp4"}, ref)

	file := &model.FileUpload{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}
	ref, strategy, err = r.ResolveSource(context.Background(), &model.AnalysisRequest{File: file})
	require.NoError(t, err)
	assert.Equal(t, resolver.StrategyUpload, strategy)
	assert.IsType(t, &model.InlineBytes{}, ref)
}

func TestResolveSourceFailureCarriesNoStrategy(t *testing.T) {
	r := newResolver(t, testConfig(), resolver.WithBrowserLauncher(panicLauncher(t)))

	ref, strategy, err := r.ResolveSource(context.Background(), &model.AnalysisRequest{URL: "ftp://example.com/a.mp4"})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeInvalidInput))
	assert.Empty(t, strategy)
	assert.Nil(t, ref)
}

// shippedConfig loads configs/.env.toml on its own, as a deployment without
// a runtime overlay would.
func shippedConfig(t *testing.T) *cloud.Config {
	t.Helper()
	t.Setenv(cloud.EnvConfigFilePrefix, test.ConfigDir())
	t.Setenv(cloud.EnvConfigRuntime, "prod")
	cfg := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(cfg))
	return cfg
}

func TestShippedConfigUploadAllowList(t *testing.T) {
	r := newResolver(t, shippedConfig(t))

	cases := map[string]bool{
		"video/mp4":                true,
		"video/mkv":                true,
		"video/avi":                true,
		"video/webm":               false,
		"video/quicktime":          false,
		"application/octet-stream": false,
	}
	for contentType, allowed := range cases {
		t.Run(contentType, func(t *testing.T) {
			file := &model.FileUpload{
				Filename:    "clip.bin",
				ContentType: contentType,
				Size:        5,
				Open: func() (io.ReadCloser, error) {
					return io.NopCloser(strings.NewReader("hello")), nil
				},
			}
			_, err := r.Resolve(context.Background(), &model.AnalysisRequest{File: file})
			if allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apierr.IsCode(err, apierr.CodeUnsupportedMediaType))
		})
	}
}

func TestShippedConfigScraperTimings(t *testing.T) {
	cfg := shippedConfig(t).Scraper
	assert.Equal(t, 60*time.Second, cfg.PageLoadTimeout.Duration)
	assert.Equal(t, 15*time.Second, cfg.ElementWait.Duration)
	assert.Equal(t, 8*time.Second, cfg.SettleDelay.Duration)
	assert.Equal(t, []string{"videoOptions", "window.videoOptions"}, cfg.Globals)
}
