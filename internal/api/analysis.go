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

package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// ResolvedSource describes the outcome of a dry-run resolution.
type ResolvedSource struct {
	Kind        string `json:"kind"`
	Strategy    string `json:"strategy"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	URI         string `json:"uri,omitempty"`
}

// requestFromForm reads the url, embedded_url and file fields of a form. The
// uploaded file is described, not read.
func requestFromForm(c *gin.Context) *model.AnalysisRequest {
	req := &model.AnalysisRequest{
		URL:         c.PostForm("url"),
		EmbeddedURL: c.PostForm("embedded_url"),
	}
	fh, err := c.FormFile("file")
	if err != nil || (fh.Filename == "" && fh.Size == 0) {
		return req
	}
	req.File = &model.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
	return req
}

// AnalysisRouter sets up the analysis routes.
func (a *API) AnalysisRouter(r *gin.RouterGroup) {
	r.POST("/analyze-video", func(c *gin.Context) {
		req := requestFromForm(c)
		slog.InfoContext(c.Request.Context(), "analyze video requested",
			"url", req.URL, "embedded_url", req.EmbeddedURL, "file", req.File != nil)

		outcome, err := a.Analyzer.Run(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		if outcome.Persistence.Attempted && !outcome.Persistence.OK() {
			slog.WarnContext(c.Request.Context(), "analysis returned without a stored record", "error", outcome.Persistence.Err)
		}
		c.JSON(http.StatusOK, outcome.Response)
	})

	r.POST("/resolve-source", func(c *gin.Context) {
		req := requestFromForm(c)
		ref, strategy, err := a.Resolver.ResolveSource(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}

		out := ResolvedSource{Strategy: strategy}
		switch v := ref.(type) {
		case model.StorageURI:
			out.Kind = "storage"
			out.URI = v.URI
			out.Filename = cloud.LastPathSegment(v.URI)
		case *model.InlineBytes:
			out.Kind = "inline"
			out.Filename = v.Filename
			out.ContentType = v.ContentType
			out.Size = len(v.Data)
		}
		c.JSON(http.StatusOK, out)
	})
}
