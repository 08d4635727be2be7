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

// Package commands holds the concrete cor.Command implementations that make
// up the analysis pipeline:
//
//	SourceResolve -> GCSVideoUpload -> VideoAnalysis -> AnalysisFinalize
//
// Each command reads its input from cor.CtxIn, writes its output to
// cor.CtxOut and records the pipeline stage it reached under model.KeyStage.
package commands

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// SourceResolver turns a request into a video reference.
type SourceResolver interface {
	Resolve(ctx context.Context, req *model.AnalysisRequest) (model.VideoReference, error)
}

// SourceResolve resolves the *model.AnalysisRequest in its input to a
// model.VideoReference.
type SourceResolve struct {
	cor.BaseCommand
	resolver SourceResolver
}

func NewSourceResolve(name string, resolver SourceResolver) *SourceResolve {
	return &SourceResolve{BaseCommand: *cor.NewBaseCommand(name), resolver: resolver}
}

func (c *SourceResolve) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.AnalysisRequest)
	context.Add(model.KeyRequest, req)

	ref, err := c.resolver.Resolve(context.GetContext(), req)
	if err != nil {
		c.Fail(context, err)
		return
	}

	switch v := ref.(type) {
	case model.StorageURI:
		slog.InfoContext(context.GetContext(), "resolved storage reference", "uri", v.URI)
	case *model.InlineBytes:
		slog.InfoContext(context.GetContext(), "resolved video bytes",
			"filename", v.Filename, "content_type", v.ContentType, "size", len(v.Data))
	}

	c.Succeed(context)
	context.Add(model.KeyStage, model.StageSourceResolved)
	context.Add(c.GetOutputParam(), ref)
}
