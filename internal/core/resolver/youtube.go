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
	"net/http"
	"regexp"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"github.com/kkdai/youtube/v2"
)

// YouTubeClient is the subset of *youtube.Client used for extraction.
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// NewYouTubeClient returns a client sharing the given HTTP client, so the
// proxy settings of downloads also apply to YouTube.
func NewYouTubeClient(httpClient *http.Client) YouTubeClient {
	return &youtube.Client{HTTPClient: httpClient}
}

// bestProgressiveMP4 returns the highest resolution mp4 format that carries
// both audio and video, or nil.
func bestProgressiveMP4(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 || !strings.HasPrefix(f.MimeType, "video/mp4") {
			continue
		}
		if best == nil || f.Height > best.Height {
			best = f
		}
	}
	return best
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N} ._()-]+`)

// youTubeFilename mirrors the default naming of common downloaders: the
// video title with unsafe characters removed plus ".mp4".
func youTubeFilename(video *youtube.Video) string {
	name := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(video.Title, ""))
	if name == "" {
		name = "youtube_" + video.ID
	}
	return name + ".mp4"
}

func (r *Resolver) fromYouTube(ctx context.Context, rawURL string) (*model.InlineBytes, error) {
	video, err := r.youtube.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, apierr.DownloadFailed(fmt.Errorf("failed to read YouTube video metadata: %w", err))
	}

	format := bestProgressiveMP4(video.Formats)
	if format == nil {
		return nil, apierr.DownloadFailed(errors.New("no progressive mp4 stream available for this YouTube video"))
	}

	maxBytes := r.downloader.MaxBytes()
	if format.ContentLength > maxBytes {
		return nil, apierr.TooLarge(maxBytes)
	}

	stream, _, err := r.youtube.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, apierr.DownloadFailed(fmt.Errorf("failed to open YouTube stream: %w", err))
	}
	defer stream.Close()

	data, err := ReadLimited(stream, maxBytes)
	if err != nil {
		return nil, err
	}

	return &model.InlineBytes{
		Filename:    youTubeFilename(video),
		ContentType: "video/mp4",
		Data:        data,
	}, nil
}
