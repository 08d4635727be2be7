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

package model_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Setting every field to its own name and reading the JSON back proves that
// FieldNames, the struct tags and the field accessors agree.
func TestFieldNamesMatchJSONTags(t *testing.T) {
	rec := &model.AnalysisRecord{}
	for _, name := range model.FieldNames {
		require.True(t, rec.Set(name, name), name)
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Len(t, m, len(model.FieldNames))
	for k, v := range m {
		assert.Equal(t, k, v)
	}
}

func TestFieldsKeepCanonicalOrder(t *testing.T) {
	b, err := json.Marshal(model.GetExampleRecord().Fields())
	require.NoError(t, err)

	last := -1
	for _, name := range model.FieldNames {
		idx := strings.Index(string(b), `"`+name+`":`)
		require.GreaterOrEqual(t, idx, 0, name)
		assert.Greater(t, idx, last, name)
		last = idx
	}
}

func TestPersistedColumns(t *testing.T) {
	cols := model.PersistedColumns()
	assert.Len(t, cols, 31)
	assert.NotContains(t, cols, "approve_offer_mentioned")
	assert.NotContains(t, cols, "transcript")
	assert.Contains(t, cols, "approve_offer_mentioned_eval")
	assert.Equal(t, "filename", cols[0])
	assert.Equal(t, "video_url", cols[len(cols)-1])
}

func TestDecodeRecordCoercesValues(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{
		"filename": "a.mp4",
		"car_type": null,
		"total_points_eval": 85,
		"percentage": 85.5,
		"service_related_video": true,
		"surprise": "x",
		"another": 1
	}`))
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m))

	rec, unknown := model.DecodeRecord(m)
	assert.Equal(t, "a.mp4", rec.Filename)
	assert.Equal(t, "", rec.CarType)
	assert.Equal(t, "85", rec.TotalPointsEval)
	assert.Equal(t, "85.5", rec.Percentage)
	assert.Equal(t, "true", rec.ServiceRelatedVideo)
	assert.Equal(t, "", rec.Summary)
	assert.Equal(t, []string{"another", "surprise"}, unknown)
}

func TestLoadMatchesColumnsByName(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "summary"},
		{Name: "filename"},
		{Name: "not_a_field"},
		{Name: "total_points_eval"},
	}
	rec := &model.AnalysisRecord{}
	require.NoError(t, rec.Load([]bigquery.Value{"s", "f.mp4", "ignored", int64(70)}, schema))

	assert.Equal(t, "s", rec.Summary)
	assert.Equal(t, "f.mp4", rec.Filename)
	assert.Equal(t, "70", rec.TotalPointsEval)
}

func TestInsertParameters(t *testing.T) {
	rec := model.GetExampleRecord()
	rec.VideoURL = "https://storage.cloud.google.com/b/f/a.mp4"

	params := rec.InsertParameters()
	require.Len(t, params, 31)
	assert.Equal(t, "filename", params[0].Name)
	assert.Equal(t, "example_file.mp4", params[0].Value)
	assert.Equal(t, "video_url", params[30].Name)
	assert.Equal(t, rec.VideoURL, params[30].Value)
}

func TestWithoutRemovesField(t *testing.T) {
	fields := model.GetExampleRecord().Fields().Without(model.FieldSummary)
	assert.Len(t, fields, len(model.FieldNames)-1)
	for _, f := range fields {
		assert.NotEqual(t, model.FieldSummary, f.Name)
	}
}

func TestExampleJSONOmitsVideoURL(t *testing.T) {
	out, err := model.ExampleJSON()
	require.NoError(t, err)

	var arr []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
	assert.NotContains(t, arr[0], model.FieldVideoURL)
	assert.Equal(t, "example_file.mp4", arr[0]["filename"])
}

func TestValidateRequiresExactlyOneSource(t *testing.T) {
	file := &model.FileUpload{Filename: "a.mp4", ContentType: "video/mp4"}
	cases := map[string]struct {
		req model.AnalysisRequest
		ok  bool
	}{
		"none":         {model.AnalysisRequest{}, false},
		"url":          {model.AnalysisRequest{URL: "gs://b/a.mp4"}, true},
		"file":         {model.AnalysisRequest{File: file}, true},
		"embedded":     {model.AnalysisRequest{EmbeddedURL: "https://citnow.com/x"}, true},
		"url and file": {model.AnalysisRequest{URL: "gs://b/a.mp4", File: file}, false},
		"all three":    {model.AnalysisRequest{URL: "u", EmbeddedURL: "e", File: file}, false},
		"blank url":    {model.AnalysisRequest{URL: "  "}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusUnprocessableEntity, apierr.From(err).Status)
		})
	}
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "uploaded", model.StageUploaded.String())
	assert.Equal(t, "failed", model.StageFailed.String())
	assert.Equal(t, "unknown", model.Stage(42).String())
}
