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

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// VideoUploader stores an in-memory video.
type VideoUploader interface {
	UploadVideo(ctx context.Context, video *model.InlineBytes) (*model.UploadResult, error)
}

// GCSVideoUpload stores InlineBytes in Cloud Storage and passes storage URIs
// through unchanged. Its output is a *model.UploadResult.
type GCSVideoUpload struct {
	cor.BaseCommand
	uploader           VideoUploader
	defaultContentType string
}

func NewGCSVideoUpload(name string, uploader VideoUploader, defaultContentType string) *GCSVideoUpload {
	if defaultContentType == "" {
		defaultContentType = "video/mp4"
	}
	return &GCSVideoUpload{BaseCommand: *cor.NewBaseCommand(name), uploader: uploader, defaultContentType: defaultContentType}
}

func (c *GCSVideoUpload) Execute(context cor.Context) {
	var result *model.UploadResult

	switch ref := context.Get(c.GetInputParam()).(type) {
	case model.StorageURI:
		result = &model.UploadResult{StorageURI: ref.URI, MIMEType: c.contentTypeOf(ref.URI)}
	case *model.InlineBytes:
		uploaded, err := c.uploader.UploadVideo(context.GetContext(), ref)
		if err != nil {
			c.Fail(context, err)
			return
		}
		slog.InfoContext(context.GetContext(), "uploaded video", "uri", uploaded.StorageURI, "size", len(ref.Data))
		result = uploaded
	default:
		c.Fail(context, fmt.Errorf("unsupported video reference %T", ref))
		return
	}

	c.Succeed(context)
	context.Add(model.KeyUpload, result)
	context.Add(model.KeyStage, model.StageUploaded)
	context.Add(c.GetOutputParam(), result)
}

// contentTypeOf guesses the MIME type of a stored object from its extension.
func (c *GCSVideoUpload) contentTypeOf(uri string) string {
	ext := strings.ToLower(path.Ext(cloud.LastPathSegment(uri)))
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "video/") {
		return t
	}
	return c.defaultContentType
}
