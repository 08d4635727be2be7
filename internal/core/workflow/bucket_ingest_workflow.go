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

package workflow

import (
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
)

// BucketIngestWorkflow analyzes videos dropped straight into the bucket. It
// takes a Cloud Storage notification as input and, for objects that pass the
// folder and extension filters, runs the analysis pipeline on their gs://
// URI exactly as if a caller had submitted it.
type BucketIngestWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

func (w *BucketIngestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// NewBucketIngestWorkflow wraps analysis behind a notification filter for the
// configured storage folder and listed extensions.
func NewBucketIngestWorkflow(config *cloud.Config, analysis *VideoAnalysisWorkflow) *BucketIngestWorkflow {
	extensions := config.Storage.ListedExtensions
	if len(extensions) == 0 {
		extensions = []string{".mp4", ".webm"}
	}

	out := cor.NewBaseChain("bucket-ingest-pipeline")
	out.AddCommand(commands.NewGCSNotificationToRequest("notification-to-request", config.Storage.Folder, extensions))
	out.AddCommand(analysis)

	return &BucketIngestWorkflow{
		BaseCommand: *cor.NewBaseCommand("bucket-ingest-pipeline"),
		chain:       out,
	}
}
