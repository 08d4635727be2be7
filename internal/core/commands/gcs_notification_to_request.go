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
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// GCSNotificationToRequest reads a Cloud Storage Pub/Sub notification from
// its input and, when the object is a video dropped into the watched folder
// by someone other than the analyzer, outputs an *model.AnalysisRequest for
// its gs:// URI. Other objects produce no output, which ends the chain
// without an error.
type GCSNotificationToRequest struct {
	cor.BaseCommand
	folder     string
	extensions []string
}

func NewGCSNotificationToRequest(name string, folder string, extensions []string) *GCSNotificationToRequest {
	return &GCSNotificationToRequest{
		BaseCommand: *cor.NewBaseCommand(name),
		folder:      strings.Trim(folder, "/"),
		extensions:  extensions,
	}
}

func (c *GCSNotificationToRequest) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var msg cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		c.Fail(context, fmt.Errorf("failed to unmarshal GCS notification: %w", err))
		return
	}
	c.Succeed(context)

	obj := cloud.GCSObject{Bucket: msg.Bucket, Name: msg.Name, MIMEType: msg.ContentType}
	if reason := c.skipReason(msg, obj); reason != "" {
		slog.DebugContext(context.GetContext(), "ignoring storage notification", "uri", obj.URI(), "reason", reason)
		context.Remove(c.GetOutputParam())
		return
	}

	slog.InfoContext(context.GetContext(), "queued stored video for analysis", "uri", obj.URI())
	context.Add(c.GetOutputParam(), &model.AnalysisRequest{URL: obj.URI()})
}

func (c *GCSNotificationToRequest) skipReason(msg cloud.GCSPubSubNotification, obj cloud.GCSObject) string {
	switch {
	case msg.Bucket == "" || msg.Name == "":
		return "incomplete notification"
	case msg.MetaData[cloud.MetadataSourceKey] == cloud.MetadataSourceValue:
		return "written by the analyzer"
	case c.folder != "" && obj.Folder() != c.folder:
		return "outside the watched folder"
	case len(c.extensions) > 0 && !slices.Contains(c.extensions, strings.ToLower(path.Ext(obj.Name))):
		return "not a listed video extension"
	}
	return ""
}
