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

	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"go.opentelemetry.io/otel/metric"
)

// RecordWriter persists one finalized record.
type RecordWriter interface {
	Insert(ctx context.Context, record *model.AnalysisRecord) error
}

// Finalize merges the upload into the parsed records. The first record gets
// the public URL as video_url and the filename taken from the storage URI.
// The input records are not modified; calling Finalize twice with the same
// arguments returns equal results.
func Finalize(records []*model.AnalysisRecord, upload *model.UploadResult) *model.AnalysisResponse {
	out := &model.AnalysisResponse{
		Response: make([]*model.AnalysisRecord, len(records)),
		Summary:  []string{},
	}
	for i, r := range records {
		out.Response[i] = r.Clone()
	}
	if len(out.Response) == 0 {
		return out
	}

	first := out.Response[0]
	first.VideoURL = upload.PublicURL
	if name := cloud.LastPathSegment(upload.StorageURI); name != "" && name != first.Filename {
		first.Filename = name
	}
	out.Summary = []string{first.Summary}
	return out
}

// AnalysisFinalize finalizes the records and writes the first one to the
// warehouse. A failed write is logged and recorded as the persistence
// outcome; it never fails the command.
//
// Input: []*model.AnalysisRecord. Output: *model.AnalysisResponse.
type AnalysisFinalize struct {
	cor.BaseCommand
	writer                  RecordWriter
	persistenceErrorCounter metric.Int64Counter
}

func NewAnalysisFinalize(name string, writer RecordWriter) *AnalysisFinalize {
	out := &AnalysisFinalize{BaseCommand: *cor.NewBaseCommand(name), writer: writer}
	out.persistenceErrorCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.persistence.error", out.GetName()))
	return out
}

// IsExecutable also requires the upload result recorded by the upload step.
func (s *AnalysisFinalize) IsExecutable(context cor.Context) bool {
	return s.BaseCommand.IsExecutable(context) && context.Get(model.KeyUpload) != nil
}

func (s *AnalysisFinalize) Execute(context cor.Context) {
	records := context.Get(s.GetInputParam()).([]*model.AnalysisRecord)
	upload := context.Get(model.KeyUpload).(*model.UploadResult)

	response := Finalize(records, upload)
	context.Add(model.KeyStage, model.StageFinalized)

	outcome := model.PersistenceOutcome{}
	if len(response.Response) > 0 {
		outcome.Attempted = true
		first := response.Response[0]
		if err := s.writer.Insert(context.GetContext(), first); err != nil {
			outcome.Err = err
			slog.ErrorContext(context.GetContext(), "failed to persist analysis record",
				"filename", first.Filename, "error", err)
			if s.persistenceErrorCounter != nil {
				s.persistenceErrorCounter.Add(context.GetContext(), 1)
			}
		}
	}

	s.Succeed(context)
	context.Add(model.KeyPersistence, outcome)
	context.Add(model.KeyResponse, response)
	context.Add(model.KeyStage, model.StageDone)
	context.Add(s.GetOutputParam(), response)
}
