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
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"google.golang.org/api/iterator"
)

// Warehouse stores analysis records keyed by filename.
type Warehouse interface {
	Insert(ctx context.Context, record *model.AnalysisRecord) error
	All(ctx context.Context) ([]*model.AnalysisRecord, error)
	ByFilename(ctx context.Context, filename string) ([]*model.AnalysisRecord, error)
	DeleteByFilename(ctx context.Context, filename string) error
}

// BigQueryWarehouse is the Warehouse backed by a single BigQuery table. All
// statements are parameterized DML; there is no streaming insert, so rows are
// immediately visible to DELETE.
type BigQueryWarehouse struct {
	Client      *bigquery.Client
	DatasetName string
	TableName   string
}

// NewBigQueryWarehouse returns a warehouse over dataset.table.
func NewBigQueryWarehouse(client *bigquery.Client, dataset string, table string) *BigQueryWarehouse {
	return &BigQueryWarehouse{Client: client, DatasetName: dataset, TableName: table}
}

// GetFQN returns the table name as used in standard SQL,
// e.g. project.dataset.table.
func (w *BigQueryWarehouse) GetFQN() string {
	fqn := w.Client.Dataset(w.DatasetName).Table(w.TableName).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Insert writes one row for record.
func (w *BigQueryWarehouse) Insert(ctx context.Context, record *model.AnalysisRecord) error {
	q := w.Client.Query(insertStatement(w.GetFQN()))
	q.Parameters = record.InsertParameters()
	if err := runDML(ctx, q); err != nil {
		return apierr.PersistenceFailed(fmt.Errorf("failed to insert record for %s: %w", record.Filename, err))
	}
	return nil
}

// All returns every stored record.
func (w *BigQueryWarehouse) All(ctx context.Context) ([]*model.AnalysisRecord, error) {
	q := w.Client.Query(fmt.Sprintf(QrySelectAll, w.GetFQN()))
	records, err := readRecords(ctx, q)
	if err != nil {
		return nil, apierr.PersistenceFailed(fmt.Errorf("failed to read records: %w", err))
	}
	return records, nil
}

// ByFilename returns the records stored for filename, possibly none.
func (w *BigQueryWarehouse) ByFilename(ctx context.Context, filename string) ([]*model.AnalysisRecord, error) {
	q := w.Client.Query(fmt.Sprintf(QrySelectByFilename, w.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "filename", Value: filename}}
	records, err := readRecords(ctx, q)
	if err != nil {
		return nil, apierr.PersistenceFailed(fmt.Errorf("failed to read records for %s: %w", filename, err))
	}
	return records, nil
}

// DeleteByFilename removes every row stored for filename. Deleting a
// filename with no rows is not an error.
func (w *BigQueryWarehouse) DeleteByFilename(ctx context.Context, filename string) error {
	q := w.Client.Query(fmt.Sprintf(QryDeleteByFilename, w.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "filename", Value: filename}}
	if err := runDML(ctx, q); err != nil {
		return apierr.PersistenceFailed(fmt.Errorf("failed to delete records for %s: %w", filename, err))
	}
	return nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

func readRecords(ctx context.Context, q *bigquery.Query) ([]*model.AnalysisRecord, error) {
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*model.AnalysisRecord, 0)
	for {
		record := &model.AnalysisRecord{}
		err := itr.Next(record)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
