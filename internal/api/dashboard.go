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
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/resolver"
)

// HealthStatus is the body of the liveness check.
type HealthStatus struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
	Version   string  `json:"version"`
}

// ProxyReport is the body of the connectivity check.
type ProxyReport struct {
	ProxyConfigured bool                            `json:"proxy_configured"`
	ProxyServer     string                          `json:"proxy_server,omitempty"`
	TestResults     map[string]resolver.ReachabilityResult `json:"test_results"`
}

// Health registers GET /health for Cloud Run health checks.
func (a *API) Health(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthStatus{
			Status:    "healthy",
			Timestamp: float64(time.Now().UnixMilli()) / 1000,
			Version:   a.Version,
		})
	})
}

// Diagnostics sets up the operator routes.
func (a *API) Diagnostics(r *gin.RouterGroup) {
	r.GET("/test-proxy", func(c *gin.Context) {
		report := ProxyReport{
			ProxyConfigured: a.ProxyURL != "",
			ProxyServer:     a.ProxyURL,
			TestResults:     make(map[string]resolver.ReachabilityResult, len(a.CheckURLs)),
		}
		for _, u := range a.CheckURLs {
			report.TestResults[u] = a.Checker.CheckURL(c.Request.Context(), u)
		}
		c.JSON(http.StatusOK, report)
	})
}

// StaticRouter serves the single-page application. Unknown /api paths get a
// JSON 404; any other unknown path gets index.html so client-side routing
// works. Without a static directory every unknown path is a JSON 404.
func (a *API) StaticRouter(r *gin.Engine) {
	index := ""
	if a.StaticDir != "" {
		assets := filepath.Join(a.StaticDir, "assets")
		if info, err := os.Stat(assets); err == nil && info.IsDir() {
			r.Static("/assets", assets)
		}
		index = filepath.Join(a.StaticDir, "index.html")
	}

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") || index == "" {
			writeError(c, apierr.NotFound("API endpoint not found"))
			return
		}
		c.File(index)
	})
}
