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

package model

import (
	"io"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
)

// VideoReference is the normalized result of source resolution. It is
// either a StorageURI or an InlineBytes; consumers switch on the concrete
// type and treat any other value as a programming error.
type VideoReference interface {
	isVideoReference()
}

// StorageURI refers to a video already stored in Cloud Storage.
type StorageURI struct {
	URI string
}

// InlineBytes is a video held in memory, not yet stored. len(Data) never
// exceeds the configured download limit.
type InlineBytes struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (StorageURI) isVideoReference()   {}
func (*InlineBytes) isVideoReference() {}

// UploadResult is where a video ended up. PublicURL is empty when the source
// already was a storage URI.
type UploadResult struct {
	StorageURI string
	PublicURL  string
	MIMEType   string
}

// FileUpload describes a multipart file without reading it.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// AnalysisRequest carries the caller's video source. Exactly one of URL,
// EmbeddedURL and File must be set.
type AnalysisRequest struct {
	URL         string
	EmbeddedURL string
	File        *FileUpload
}

// Validate enforces the exactly-one-source rule.
func (r *AnalysisRequest) Validate() error {
	n := 0
	if strings.TrimSpace(r.URL) != "" {
		n++
	}
	if strings.TrimSpace(r.EmbeddedURL) != "" {
		n++
	}
	if r.File != nil {
		n++
	}
	if n != 1 {
		return apierr.InvalidInput("provide exactly one of 'url', 'file' or 'embedded_url', got %d", n)
	}
	return nil
}

// AnalysisResponse is the body returned by the analyze endpoint.
type AnalysisResponse struct {
	Response []*AnalysisRecord `json:"response"`
	Summary  []string          `json:"summary"`
}

// PersistenceOutcome records whether the warehouse write after a successful
// analysis went through. A failed write never fails the request.
type PersistenceOutcome struct {
	Attempted bool
	Err       error
}

func (p PersistenceOutcome) OK() bool {
	return p.Attempted && p.Err == nil
}

// Stage is the position of one request in the analysis pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageSourceResolved
	StageUploaded
	StageAnalyzed
	StageFinalized
	StageDone
	StageFailed
)

var stageNames = [...]string{"idle", "source_resolved", "uploaded", "analyzed", "finalized", "done", "failed"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Context keys shared by the pipeline commands.
const (
	KeyStage       = "__STAGE__"
	KeyRequest     = "__REQUEST__"
	KeyUpload      = "__UPLOAD__"
	KeyRecords     = "__RECORDS__"
	KeyResponse    = "__RESPONSE__"
	KeyPersistence = "__PERSISTENCE__"
)
