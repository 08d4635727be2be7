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

// Package workflow assembles the pipeline commands into runnable chains.
//
// VideoAnalysisWorkflow is the request path:
//
//	Idle -> SourceResolved -> Uploaded -> Analyzed -> Finalized -> Done
//
// with Failed reachable from every step before Finalized. Finalization never
// fails the run; a failed warehouse write is reported in the outcome.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/template"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// AnalysisOutcome is the result of one pipeline run.
type AnalysisOutcome struct {
	Response    *model.AnalysisResponse
	Stage       model.Stage
	Persistence model.PersistenceOutcome
}

// Dependencies are the collaborators of the analysis pipeline.
type Dependencies struct {
	Resolver  commands.SourceResolver
	Uploader  commands.VideoUploader
	Model     cloud.ModelClient
	Warehouse commands.RecordWriter
}

// VideoAnalysisWorkflow runs SourceResolve, GCSVideoUpload, VideoAnalysis and
// AnalysisFinalize in order. It can be used directly through Run or nested in
// another chain as a cor.Command taking an *model.AnalysisRequest.
type VideoAnalysisWorkflow struct {
	cor.BaseCommand
	deps               Dependencies
	analysisTemplate   *template.Template
	brand              string
	defaultContentType string
	chain              cor.Chain
}

func (w *VideoAnalysisWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *VideoAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	out.AddCommand(commands.NewSourceResolve("resolve-source", w.deps.Resolver))

	out.AddCommand(commands.NewGCSVideoUpload("upload-to-gcs", w.deps.Uploader, w.defaultContentType))

	out.AddCommand(commands.NewVideoAnalysis("analyze-video", w.deps.Model, w.analysisTemplate, w.brand))

	out.AddCommand(commands.NewAnalysisFinalize("finalize-analysis", w.deps.Warehouse))

	w.chain = out
}

// NewVideoAnalysisWorkflow builds the pipeline. It fails when the analysis
// prompt template does not parse.
func NewVideoAnalysisWorkflow(config *cloud.Config, deps Dependencies) (*VideoAnalysisWorkflow, error) {
	analysisTemplate, err := template.New("analysis-template").Parse(config.PromptTemplates.AnalysisPrompt)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis prompt template: %w", err)
	}

	pipeline := &VideoAnalysisWorkflow{
		BaseCommand:        *cor.NewBaseCommand("video-analysis-pipeline"),
		deps:               deps,
		analysisTemplate:   analysisTemplate,
		brand:              config.Application.Brand,
		defaultContentType: config.Sources.DefaultContentType,
	}
	pipeline.initializeChain()
	return pipeline, nil
}

// Run executes the pipeline for req. The returned error is the first failure
// of the chain, typically an *apierr.Error; the outcome is returned in both
// cases and carries the final stage.
func (w *VideoAnalysisWorkflow) Run(ctx context.Context, req *model.AnalysisRequest) (*AnalysisOutcome, error) {
	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(ctx)
	chCtx.Add(model.KeyStage, model.StageIdle)
	chCtx.Add(cor.CtxIn, req)

	w.Execute(chCtx)

	outcome := &AnalysisOutcome{Stage: model.StageFailed}
	if p, ok := chCtx.Get(model.KeyPersistence).(model.PersistenceOutcome); ok {
		outcome.Persistence = p
	}
	if chCtx.HasErrors() {
		return outcome, chCtx.FirstError()
	}

	response, ok := chCtx.Get(model.KeyResponse).(*model.AnalysisResponse)
	if !ok {
		return outcome, apierr.New(http.StatusInternalServerError, apierr.CodeInternal, errors.New("pipeline finished without a response"))
	}
	outcome.Response = response
	outcome.Stage, _ = chCtx.Get(model.KeyStage).(model.Stage)
	return outcome, nil
}
