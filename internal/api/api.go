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

// Package api defines the HTTP surface of the analyzer.
//
// Routes:
//   - POST /api/analyze-video: Runs the analysis pipeline on one video source.
//   - POST /api/resolve-source: Resolves a source without uploading or analyzing it.
//   - GET  /api/get-file-urls: Lists the stored videos and their public URLs.
//   - GET  /api/get-video-data: Returns every analysis record.
//   - POST /api/single-record: Returns the records of one file.
//   - POST /api/delete-data: Deletes a video and its records.
//   - GET  /api/stream-url: Returns a signed playback URL.
//   - GET  /api/test-proxy: Checks outbound connectivity.
//   - GET  /health: Liveness check.
//
// Every failure is written as {"detail": ..., "code": ...} by writeError.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/resolver"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/services"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/workflow"
)

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Run(ctx context.Context, req *model.AnalysisRequest) (*workflow.AnalysisOutcome, error)
}

// SourceResolver turns a request into a video reference and names the
// strategy that produced it.
type SourceResolver interface {
	ResolveSource(ctx context.Context, req *model.AnalysisRequest) (model.VideoReference, string, error)
}

// ReachabilityChecker checks whether a URL is reachable from the server.
type ReachabilityChecker interface {
	CheckURL(ctx context.Context, rawURL string) resolver.ReachabilityResult
}

// API holds the collaborators of the HTTP handlers.
type API struct {
	Analyzer  Analyzer
	Resolver  SourceResolver
	Checker   ReachabilityChecker
	Records   *services.RecordService
	Media     *services.MediaService
	Version   string
	StaticDir string
	CheckURLs []string
	ProxyURL  string
}

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// Register adds every route to r.
func (a *API) Register(r *gin.Engine) {
	a.Health(r)

	apiGroup := r.Group("/api")
	{
		a.AnalysisRouter(apiGroup)
		a.RecordsRouter(apiGroup)
		a.MediaRouter(apiGroup)
		a.Diagnostics(apiGroup)
	}

	a.StaticRouter(r)
}

// writeError maps err onto its status code and aborts the request.
func writeError(c *gin.Context, err error) {
	e := apierr.From(err)
	if e.Status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "code", e.Code, "error", err)
	} else {
		slog.WarnContext(c.Request.Context(), "request rejected", "path", c.FullPath(), "code", e.Code, "error", err)
	}
	c.AbortWithStatusJSON(e.Status, ErrorBody{Detail: e.Error(), Code: e.Code})
}
