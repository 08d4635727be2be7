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

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/services"
)

// MediaRouter sets up the routes over the stored videos.
//
// Inputs:
//   - r: The group the routes are added to, normally "/api".
//
// This function defines the following endpoints:
//   - GET /get-file-urls: Lists the stored videos with their public URLs.
//   - GET /stream-url?filename=<name>: Returns a time-limited signed URL for playback.
func (a *API) MediaRouter(r *gin.RouterGroup) {
	r.GET("/get-file-urls", func(c *gin.Context) {
		files, err := a.Media.ListVideos(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if files == nil {
			files = []services.VideoFile{}
		}
		c.JSON(http.StatusOK, files)
	})

	r.GET("/stream-url", func(c *gin.Context) {
		filename := c.Query("filename")
		if filename == "" {
			writeError(c, apierr.InvalidInput("filename is required"))
			return
		}
		signedURL, err := a.Media.GenerateSignedURL(c.Request.Context(), filename)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": signedURL})
	})
}
