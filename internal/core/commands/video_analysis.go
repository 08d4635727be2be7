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
	"bytes"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

// VideoAnalysis sends a stored video and the rubric prompt to Gemini and
// parses the reply into records.
//
// Input: *model.UploadResult. Output: []*model.AnalysisRecord.
//
// The prompt template receives FILE_NAME (last segment of the storage URI),
// BRAND and EXAMPLE_JSON. The model call is made once; rate limiting and
// cancellation handling belong to the ModelClient.
type VideoAnalysis struct {
	cor.BaseCommand
	model                    cloud.ModelClient
	template                 *template.Template
	brand                    string
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
}

func NewVideoAnalysis(name string, model cloud.ModelClient, template *template.Template, brand string) *VideoAnalysis {
	out := &VideoAnalysis{
		BaseCommand: *cor.NewBaseCommand(name),
		model:       model,
		template:    template,
		brand:       brand,
	}
	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	return out
}

// GenerateParams builds the template parameters for the video at uri.
func (t *VideoAnalysis) GenerateParams(uri string) (map[string]interface{}, error) {
	example, err := model.ExampleJSON()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"FILE_NAME":    cloud.LastPathSegment(uri),
		"BRAND":        t.brand,
		"EXAMPLE_JSON": example,
	}, nil
}

func (t *VideoAnalysis) Execute(context cor.Context) {
	upload := context.Get(t.GetInputParam()).(*model.UploadResult)

	params, err := t.GenerateParams(upload.StorageURI)
	if err != nil {
		t.Fail(context, fmt.Errorf("failed to build prompt parameters: %w", err))
		return
	}
	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, params); err != nil {
		t.Fail(context, fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}

	contents := []*genai.Content{
		{Parts: []*genai.Part{
			{FileData: cloud.NewFileData(upload.StorageURI, upload.MIMEType)},
			{Text: buffer.String()},
		},
			Role: "user"},
	}

	reply, err := cloud.GenerateMultiModalResponse(context.GetContext(), t.geminiInputTokenCounter, t.geminiOutputTokenCounter, t.model, contents)
	if err != nil {
		t.Fail(context, apierr.ModelUnavailable(fmt.Errorf("gemini request failed: %w", err)))
		return
	}

	records, unknown, err := ParseAnalysisReply(reply)
	if err != nil {
		slog.WarnContext(context.GetContext(), "rejected model reply", "uri", upload.StorageURI, "error", err)
		t.Fail(context, err)
		return
	}
	if len(unknown) > 0 {
		slog.WarnContext(context.GetContext(), "dropped unknown keys from model reply", "keys", unknown)
	}

	t.Succeed(context)
	context.Add(model.KeyRecords, records)
	context.Add(model.KeyStage, model.StageAnalyzed)
	context.Add(t.GetOutputParam(), records)
}
