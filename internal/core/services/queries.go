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
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// BigQuery statements used by the warehouse. The %s placeholder is always the
// fully qualified table name; values travel as named query parameters.
const (
	// QrySelectAll returns every analysis row.
	QrySelectAll = "SELECT * FROM `%s`"

	// QrySelectByFilename returns the rows stored for one video.
	//
	// Parameters:
	// - @filename: The authoritative filename of the video.
	QrySelectByFilename = "SELECT * FROM `%s` WHERE filename = @filename"

	// QryDeleteByFilename removes the rows stored for one video.
	//
	// Parameters:
	// - @filename: The authoritative filename of the video.
	QryDeleteByFilename = "DELETE FROM `%s` WHERE filename = @filename"
)

// insertStatement builds the DML INSERT for one record. Every persisted
// column is bound to a parameter of the same name, matching the parameters
// returned by AnalysisRecord.InsertParameters.
func insertStatement(fqn string) string {
	cols := model.PersistedColumns()
	params := make([]string, len(cols))
	for i, col := range cols {
		params[i] = "@" + col
	}
	return fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		fqn, strings.Join(cols, ", "), strings.Join(params, ", "))
}
