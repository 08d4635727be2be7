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

// Package services contains the data access logic behind the pipeline and
// the HTTP handlers. MediaService owns the stored video files, RecordService
// owns the analysis rows in the warehouse.
package services

import (
	"context"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

const (
	defaultPublicURLBase     = "https://storage.cloud.google.com"
	defaultSignedURLDuration = 15 * time.Minute
)

var defaultListedExtensions = []string{".mp4", ".webm"}

// VideoFile is one entry of the stored video listing.
type VideoFile struct {
	FileName  string `json:"file_name"`
	PublicURL string `json:"public_url"`
}

// MediaService stores and lists the videos under the configured bucket folder.
type MediaService struct {
	Blobs  BlobStore
	Config cloud.Storage
}

// NewMediaService returns a MediaService over blobs. Empty settings fall back
// to the public storage host, .mp4/.webm listings and 15 minute signed URLs.
func NewMediaService(blobs BlobStore, config cloud.Storage) *MediaService {
	if config.PublicURLBase == "" {
		config.PublicURLBase = defaultPublicURLBase
	}
	if len(config.ListedExtensions) == 0 {
		config.ListedExtensions = defaultListedExtensions
	}
	if config.SignedURLDuration.Duration <= 0 {
		config.SignedURLDuration = cloud.Duration{Duration: defaultSignedURLDuration}
	}
	return &MediaService{Blobs: blobs, Config: config}
}

// ObjectFor returns the storage object for filename in the video folder.
func (s *MediaService) ObjectFor(filename string) cloud.GCSObject {
	return cloud.NewGCSObject(s.Config.Bucket, s.Config.Folder, filename)
}

// UploadVideo writes video to <bucket>/<folder>/<filename>, overwriting any
// object of the same name.
//
// Inputs:
//   - ctx: The context for the request.
//   - video: The in-memory video to store.
//
// Outputs:
//   - *model.UploadResult: The storage URI and public URL, both derived from
//     the same object so they always decompose to the same triple.
//   - error: A StorageUnavailable error when the write fails.
func (s *MediaService) UploadVideo(ctx context.Context, video *model.InlineBytes) (*model.UploadResult, error) {
	if video == nil || video.Filename == "" {
		return nil, apierr.InvalidInput("video has no filename")
	}
	obj := s.ObjectFor(video.Filename)
	obj.MIMEType = video.ContentType

	metadata := map[string]string{cloud.MetadataSourceKey: cloud.MetadataSourceValue}
	if err := s.Blobs.Write(ctx, obj, video.Data, metadata); err != nil {
		return nil, err
	}
	return &model.UploadResult{
		StorageURI: obj.URI(),
		PublicURL:  obj.PublicURL(s.Config.PublicURLBase),
		MIMEType:   video.ContentType,
	}, nil
}

// ListVideos returns the stored videos whose extension is listed, in the
// order the store returns them.
func (s *MediaService) ListVideos(ctx context.Context) ([]VideoFile, error) {
	objects, err := s.Blobs.List(ctx, s.Config.Bucket, folderPrefix(s.Config.Folder))
	if err != nil {
		return nil, err
	}
	out := make([]VideoFile, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, "/") {
			continue
		}
		if !slices.Contains(s.Config.ListedExtensions, strings.ToLower(path.Ext(obj.Name))) {
			continue
		}
		out = append(out, VideoFile{FileName: obj.Filename(), PublicURL: obj.PublicURL(s.Config.PublicURLBase)})
	}
	return out, nil
}

// GenerateSignedURL returns a time-limited playback URL for filename.
func (s *MediaService) GenerateSignedURL(ctx context.Context, filename string) (string, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return "", apierr.InvalidInput("filename is required")
	}
	return s.Blobs.SignedURL(ctx, s.ObjectFor(filename), s.Config.SignedURLDuration.Duration)
}

// DeleteVideo removes the stored video named filename.
func (s *MediaService) DeleteVideo(ctx context.Context, filename string) error {
	return s.Blobs.Delete(ctx, s.ObjectFor(filename))
}
