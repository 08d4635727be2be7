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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// FilenameRequest is the body of the record lookup and delete routes.
type FilenameRequest struct {
	Filename string `json:"filename"`
}

func bindFilename(c *gin.Context) (string, bool) {
	var body FilenameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.InvalidInput("invalid request body: %v", err))
		return "", false
	}
	if body.Filename == "" {
		writeError(c, apierr.InvalidInput("filename is required"))
		return "", false
	}
	return body.Filename, true
}

// RecordsRouter sets up the routes reading and deleting analysis records.
func (a *API) RecordsRouter(r *gin.RouterGroup) {
	r.GET("/get-video-data", func(c *gin.Context) {
		records, err := a.Records.All(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if records == nil {
			records = []*model.AnalysisRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	})

	r.POST("/single-record", func(c *gin.Context) {
		filename, ok := bindFilename(c)
		if !ok {
			return
		}
		out, err := a.Records.Get(c.Request.Context(), filename)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/delete-data", func(c *gin.Context) {
		filename, ok := bindFilename(c)
		if !ok {
			return
		}
		if err := a.Records.Delete(c.Request.Context(), filename); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Data for file '%s' successfully deleted from both storage and the warehouse.", filename),
		})
	})
}
