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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/workflow"
)

// UploadSubscription is the topic_subscriptions key of the bucket
// notification subscription.
const UploadSubscription = "UploadTopic"

// SetupListeners attaches the bucket ingest workflow to the upload
// subscription and starts it. Without that subscription in the configuration
// only the HTTP API runs.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients, analysis *workflow.VideoAnalysisWorkflow) {
	listener, ok := cloudClients.PubSubListeners[UploadSubscription]
	if !ok {
		slog.Info("no upload subscription configured, bucket ingest disabled")
		return
	}
	listener.SetCommand(workflow.NewBucketIngestWorkflow(config, analysis))
	listener.Listen(ctx)
}
