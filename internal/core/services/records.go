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

package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"golang.org/x/sync/errgroup"
)

// SingleRecord is the lookup result for one filename: the stored rows with
// their summary removed, and the summaries in the same order.
type SingleRecord struct {
	Records []model.Fields `json:"records"`
	Summary []string       `json:"summary"`
}

// RecordService reads and deletes analysis records.
type RecordService struct {
	Warehouse Warehouse
	Media     *MediaService
}

// NewRecordService returns a RecordService. media is used to delete the video
// that belongs to a record.
func NewRecordService(warehouse Warehouse, media *MediaService) *RecordService {
	return &RecordService{Warehouse: warehouse, Media: media}
}

// All returns every stored record.
func (s *RecordService) All(ctx context.Context) ([]*model.AnalysisRecord, error) {
	return s.Warehouse.All(ctx)
}

// Get returns the records stored for filename, or a NotFound error when
// there are none.
func (s *RecordService) Get(ctx context.Context, filename string) (*SingleRecord, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apierr.InvalidInput("filename is required")
	}
	records, err := s.Warehouse.ByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apierr.NotFound("no record found for %s", filename)
	}

	out := &SingleRecord{
		Records: make([]model.Fields, 0, len(records)),
		Summary: make([]string, 0, len(records)),
	}
	for _, r := range records {
		out.Summary = append(out.Summary, r.Summary)
		out.Records = append(out.Records, r.Fields().Without(model.FieldSummary))
	}
	return out, nil
}

// Delete removes the stored video and its warehouse rows concurrently. Both
// deletes always run to completion; a failure on one side does not cancel or
// roll back the other. When both fail the storage error is reported first.
func (s *RecordService) Delete(ctx context.Context, filename string) error {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return apierr.InvalidInput("filename is required")
	}

	var (
		g         errgroup.Group
		storeErr  error
		recordErr error
	)
	g.Go(func() error {
		storeErr = s.Media.DeleteVideo(ctx, filename)
		return storeErr
	})
	g.Go(func() error {
		recordErr = s.Warehouse.DeleteByFilename(ctx, filename)
		return recordErr
	})
	if err := g.Wait(); err == nil {
		slog.InfoContext(ctx, "deleted video and records", "filename", filename)
		return nil
	}

	if storeErr != nil {
		slog.WarnContext(ctx, "failed to delete video", "filename", filename, "error", storeErr)
	}
	if recordErr != nil {
		slog.WarnContext(ctx, "failed to delete records", "filename", filename, "error", recordErr)
	}
	return errors.Join(storeErr, recordErr)
}
