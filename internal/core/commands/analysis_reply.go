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

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
)

// modelErrorKey is the key the model uses to reject a video instead of
// scoring it.
const modelErrorKey = "data"

// ParseAnalysisReply turns the raw model reply into records.
//
// The reply is cleaned of code fences and must then be a single JSON value:
//   - an object with a "data" key is the model refusing the video and yields
//     a ModelReportedError carrying that value;
//   - a non-empty array of objects yields one record per object, with values
//     coerced to strings; unknown keys are returned for logging;
//   - anything else is a MalformedModelOutput error.
func ParseAnalysisReply(reply string) (records []*model.AnalysisRecord, unknown []string, err error) {
	cleaned := cloud.CleanModelJSON(reply)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, nil, apierr.MalformedModelOutput(fmt.Errorf("model reply is not JSON: %w", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, apierr.MalformedModelOutput(errors.New("model reply has trailing content after the JSON value"))
	}

	switch t := v.(type) {
	case map[string]any:
		if msg, ok := t[modelErrorKey]; ok {
			return nil, nil, apierr.ModelReportedError(errorMessage(msg))
		}
		return nil, nil, apierr.MalformedModelOutput(errors.New("model reply is an object, expected an array of records"))
	case []any:
		if len(t) == 0 {
			return nil, nil, apierr.MalformedModelOutput(errors.New("model reply is an empty array"))
		}
		records = make([]*model.AnalysisRecord, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, nil, apierr.MalformedModelOutput(fmt.Errorf("model reply element %d is not an object", i))
			}
			rec, extra := model.DecodeRecord(m)
			records = append(records, rec)
			unknown = append(unknown, extra...)
		}
		return records, unknown, nil
	default:
		return nil, nil, apierr.MalformedModelOutput(fmt.Errorf("model reply is a %T, expected an array of records", v))
	}
}

func errorMessage(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
