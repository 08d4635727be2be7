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

package test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"google.golang.org/genai"
)

// StoredObject is one object held by a MemoryBlobStore.
type StoredObject struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// MemoryBlobStore is an in-memory BlobStore. The *Err fields, when set, are
// returned by the matching operation instead of touching the store.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string]StoredObject

	WriteErr  error
	ListErr   error
	DeleteErr error

	Writes  int
	Deletes int
}

// NewMemoryBlobStore returns an empty store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string]StoredObject)}
}

// Put seeds an object without counting it as a write.
func (s *MemoryBlobStore) Put(uri string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[uri] = StoredObject{Data: data, ContentType: contentType}
}

// Object returns the object stored at uri.
func (s *MemoryBlobStore) Object(uri string) (StoredObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[uri]
	return o, ok
}

func (s *MemoryBlobStore) Write(_ context.Context, obj cloud.GCSObject, data []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.objects[obj.URI()] = StoredObject{
		Data:        slices.Clone(data),
		ContentType: obj.MIMEType,
		Metadata:    maps.Clone(metadata),
	}
	return nil
}

func (s *MemoryBlobStore) List(_ context.Context, bucket string, prefix string) ([]cloud.GCSObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]cloud.GCSObject, 0)
	for _, uri := range slices.Sorted(maps.Keys(s.objects)) {
		obj, err := cloud.ParseStorageURI(uri)
		if err != nil || obj.Bucket != bucket || !strings.HasPrefix(obj.Name, prefix) {
			continue
		}
		obj.MIMEType = s.objects[uri].ContentType
		out = append(out, obj)
	}
	return out, nil
}

func (s *MemoryBlobStore) Delete(_ context.Context, obj cloud.GCSObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.objects[obj.URI()]; !ok {
		return apierr.NotFound("file %s not found in storage", obj.Filename())
	}
	delete(s.objects, obj.URI())
	return nil
}

func (s *MemoryBlobStore) SignedURL(_ context.Context, obj cloud.GCSObject, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example.com/%s/%s?expires=%d", obj.Bucket, obj.Name, int(expires.Seconds())), nil
}

// MemoryWarehouse is an in-memory Warehouse keeping rows in insertion order.
type MemoryWarehouse struct {
	mu   sync.Mutex
	rows []*model.AnalysisRecord

	InsertErr error
	ReadErr   error
	DeleteErr error

	Inserts int
	Deletes int
}

// NewMemoryWarehouse returns a warehouse holding copies of rows.
func NewMemoryWarehouse(rows ...*model.AnalysisRecord) *MemoryWarehouse {
	w := &MemoryWarehouse{}
	for _, r := range rows {
		w.rows = append(w.rows, r.Clone())
	}
	return w
}

// Rows returns copies of the stored rows.
func (w *MemoryWarehouse) Rows() []*model.AnalysisRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.AnalysisRecord, len(w.rows))
	for i, r := range w.rows {
		out[i] = r.Clone()
	}
	return out
}

func (w *MemoryWarehouse) Insert(_ context.Context, record *model.AnalysisRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Inserts++
	if w.InsertErr != nil {
		return w.InsertErr
	}
	w.rows = append(w.rows, record.Clone())
	return nil
}

func (w *MemoryWarehouse) All(_ context.Context) ([]*model.AnalysisRecord, error) {
	if w.ReadErr != nil {
		return nil, w.ReadErr
	}
	return w.Rows(), nil
}

func (w *MemoryWarehouse) ByFilename(_ context.Context, filename string) ([]*model.AnalysisRecord, error) {
	if w.ReadErr != nil {
		return nil, w.ReadErr
	}
	out := make([]*model.AnalysisRecord, 0)
	for _, r := range w.Rows() {
		if r.Filename == filename {
			out = append(out, r)
		}
	}
	return out, nil
}

func (w *MemoryWarehouse) DeleteByFilename(_ context.Context, filename string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Deletes++
	if w.DeleteErr != nil {
		return w.DeleteErr
	}
	w.rows = slices.DeleteFunc(w.rows, func(r *model.AnalysisRecord) bool { return r.Filename == filename })
	return nil
}

// FakeModel is a ModelClient returning a canned reply.
type FakeModel struct {
	mu sync.Mutex

	Reply string
	Err   error

	Calls    int
	Contents [][]*genai.Content
}

func (m *FakeModel) GenerateContent(_ context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Contents = append(m.Contents, content)
	if m.Err != nil {
		return nil, m.Err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Reply}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 20},
	}, nil
}

// LastPrompt returns the text parts of the most recent call.
func (m *FakeModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Contents) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range m.Contents[len(m.Contents)-1] {
		for _, p := range c.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// LastFileData returns the file reference of the most recent call, or nil.
func (m *FakeModel) LastFileData() *genai.FileData {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Contents) == 0 {
		return nil
	}
	for _, c := range m.Contents[len(m.Contents)-1] {
		for _, p := range c.Parts {
			if p.FileData != nil {
				return p.FileData
			}
		}
	}
	return nil
}
