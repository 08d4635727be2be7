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

// Package model defines the data structures shared by the analysis pipeline:
// the analysis record produced by the model and stored in BigQuery, the video
// references produced by source resolution and the request/response types of
// the pipeline.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"cloud.google.com/go/bigquery"
)

// Names of the record fields referenced by the pipeline.
const (
	FieldFilename = "filename"
	FieldSummary  = "summary"
	FieldVideoURL = "video_url"
)

// AnalysisRecord is the flat result of analysing one service video. Every
// value is a string; absent or null values are the empty string. The JSON
// field order is the declaration order.
type AnalysisRecord struct {
	Filename                           string `json:"filename" bigquery:"filename"`
	CarType                            string `json:"car_type" bigquery:"car_type"`
	ServiceRelatedVideo                string `json:"service_related_video" bigquery:"service_related_video"`
	SoundAndImage                      string `json:"sound_and_image" bigquery:"sound_and_image"`
	ShowLicensePlate                   string `json:"show_license_plate" bigquery:"show_license_plate"`
	CarOnRamp                          string `json:"car_on_ramp" bigquery:"car_on_ramp"`
	ServiceAdvisorOrTechnicianName     string `json:"service_advisor_or_technician_name" bigquery:"service_advisor_or_technician_name"`
	DealershipName                     string `json:"DealershipName" bigquery:"DealershipName"`
	SpecialToolsTyres                  string `json:"special_tools_tyres" bigquery:"special_tools_tyres"`
	CustomerName                       string `json:"customer_name" bigquery:"customer_name"`
	SpecialToolsBrakePad               string `json:"special_tools_brake_pad" bigquery:"special_tools_brake_pad"`
	SpecialToolsDisc                   string `json:"Special_tools_disc" bigquery:"Special_tools_disc"`
	AttachedOfferMentioned             string `json:"attached_offer_mentioned" bigquery:"attached_offer_mentioned"`
	ApproveOfferMentioned              string `json:"approve_offer_mentioned" bigquery:"approve_offer_mentioned"`
	CorrectEnding                      string `json:"correct_ending" bigquery:"correct_ending"`
	ShowLicensePlateEval               string `json:"show_license_plate_eval" bigquery:"show_license_plate_eval"`
	CarOnRampEval                      string `json:"car_on_ramp_eval" bigquery:"car_on_ramp_eval"`
	ServiceAdvisorOrTechnicianNameEval string `json:"service_advisor_or_technician_name_eval" bigquery:"service_advisor_or_technician_name_eval"`
	DealershipNameEval                 string `json:"DealershipName_eval" bigquery:"DealershipName_eval"`
	CustomerNameEval                   string `json:"customer_name_eval" bigquery:"customer_name_eval"`
	SpecialToolsTyresEval              string `json:"special_tools_tyres_eval" bigquery:"special_tools_tyres_eval"`
	SpecialToolsBrakePadEval           string `json:"special_tools_brake_pad_eval" bigquery:"special_tools_brake_pad_eval"`
	SpecialToolsDiscEval               string `json:"Special_tools_disc_eval" bigquery:"Special_tools_disc_eval"`
	AttachedOfferMentionedEval         string `json:"attached_offer_mentioned_eval" bigquery:"attached_offer_mentioned_eval"`
	ApproveOfferMentionedEval          string `json:"approve_offer_mentioned_eval" bigquery:"approve_offer_mentioned_eval"`
	CorrectEndingEval                  string `json:"correct_ending_eval" bigquery:"correct_ending_eval"`
	TotalPointsEval                    string `json:"total_points_eval" bigquery:"total_points_eval"`
	Percentage                         string `json:"percentage" bigquery:"percentage"`
	BatteryCheckedEval                 string `json:"battery_checked_eval" bigquery:"battery_checked_eval"`
	WindScreenCheckedEval              string `json:"wind_screen_checked_eval" bigquery:"wind_screen_checked_eval"`
	Summary                            string `json:"summary" bigquery:"summary"`
	DiagnosticOrNot                    string `json:"diagnostic_or_not" bigquery:"diagnostic_or_not"`
	Transcript                         string `json:"transcript" bigquery:"transcript"`
	Comments                           string `json:"comments" bigquery:"comments"`
	VideoURL                           string `json:"video_url" bigquery:"video_url"`
}

// FieldNames lists every record field in canonical order.
var FieldNames = []string{
	"filename",
	"car_type",
	"service_related_video",
	"sound_and_image",
	"show_license_plate",
	"car_on_ramp",
	"service_advisor_or_technician_name",
	"DealershipName",
	"special_tools_tyres",
	"customer_name",
	"special_tools_brake_pad",
	"Special_tools_disc",
	"attached_offer_mentioned",
	"approve_offer_mentioned",
	"correct_ending",
	"show_license_plate_eval",
	"car_on_ramp_eval",
	"service_advisor_or_technician_name_eval",
	"DealershipName_eval",
	"customer_name_eval",
	"special_tools_tyres_eval",
	"special_tools_brake_pad_eval",
	"Special_tools_disc_eval",
	"attached_offer_mentioned_eval",
	"approve_offer_mentioned_eval",
	"correct_ending_eval",
	"total_points_eval",
	"percentage",
	"battery_checked_eval",
	"wind_screen_checked_eval",
	"summary",
	"diagnostic_or_not",
	"transcript",
	"comments",
	"video_url",
}

// responseOnly fields are returned to callers but have no warehouse column.
var responseOnly = map[string]bool{
	"approve_offer_mentioned": true,
	"diagnostic_or_not":       true,
	"transcript":              true,
	"comments":                true,
}

// PersistedColumns returns the warehouse columns in canonical order.
func PersistedColumns() []string {
	out := make([]string, 0, len(FieldNames)-len(responseOnly))
	for _, name := range FieldNames {
		if !responseOnly[name] {
			out = append(out, name)
		}
	}
	return out
}

// values returns pointers to every field, aligned with FieldNames.
func (r *AnalysisRecord) values() []*string {
	return []*string{
		&r.Filename,
		&r.CarType,
		&r.ServiceRelatedVideo,
		&r.SoundAndImage,
		&r.ShowLicensePlate,
		&r.CarOnRamp,
		&r.ServiceAdvisorOrTechnicianName,
		&r.DealershipName,
		&r.SpecialToolsTyres,
		&r.CustomerName,
		&r.SpecialToolsBrakePad,
		&r.SpecialToolsDisc,
		&r.AttachedOfferMentioned,
		&r.ApproveOfferMentioned,
		&r.CorrectEnding,
		&r.ShowLicensePlateEval,
		&r.CarOnRampEval,
		&r.ServiceAdvisorOrTechnicianNameEval,
		&r.DealershipNameEval,
		&r.CustomerNameEval,
		&r.SpecialToolsTyresEval,
		&r.SpecialToolsBrakePadEval,
		&r.SpecialToolsDiscEval,
		&r.AttachedOfferMentionedEval,
		&r.ApproveOfferMentionedEval,
		&r.CorrectEndingEval,
		&r.TotalPointsEval,
		&r.Percentage,
		&r.BatteryCheckedEval,
		&r.WindScreenCheckedEval,
		&r.Summary,
		&r.DiagnosticOrNot,
		&r.Transcript,
		&r.Comments,
		&r.VideoURL,
	}
}

func (r *AnalysisRecord) field(name string) *string {
	for i, n := range FieldNames {
		if n == name {
			return r.values()[i]
		}
	}
	return nil
}

// Get returns the value of the named field and whether the field exists.
func (r *AnalysisRecord) Get(name string) (string, bool) {
	if p := r.field(name); p != nil {
		return *p, true
	}
	return "", false
}

// Set assigns the named field. Unknown names are ignored and reported false.
func (r *AnalysisRecord) Set(name, value string) bool {
	if p := r.field(name); p != nil {
		*p = value
		return true
	}
	return false
}

// Clone returns a copy of the record.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	c := *r
	return &c
}

// DecodeRecord coerces one JSON object from the model into a record. Nulls
// and missing keys become "", numbers and booleans their literal text and
// nested values their compact JSON. Keys outside the field set are dropped
// and returned sorted so the caller can log them.
func DecodeRecord(m map[string]any) (rec *AnalysisRecord, unknown []string) {
	rec = &AnalysisRecord{}
	for k, v := range m {
		if !rec.Set(k, coerce(v)) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return rec, unknown
}

func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Load implements bigquery.ValueLoader. Columns are matched by name so the
// table may carry columns in any order; unknown columns are ignored.
func (r *AnalysisRecord) Load(v []bigquery.Value, s bigquery.Schema) error {
	for i, f := range s {
		if i >= len(v) {
			break
		}
		r.Set(f.Name, coerce(v[i]))
	}
	return nil
}

// InsertParameters returns one named STRING parameter per warehouse column.
func (r *AnalysisRecord) InsertParameters() []bigquery.QueryParameter {
	cols := PersistedColumns()
	params := make([]bigquery.QueryParameter, 0, len(cols))
	for _, col := range cols {
		v, _ := r.Get(col)
		params = append(params, bigquery.QueryParameter{Name: col, Value: v})
	}
	return params
}

// Fields returns the record as ordered name/value pairs.
func (r *AnalysisRecord) Fields() Fields {
	vals := r.values()
	out := make(Fields, len(FieldNames))
	for i, name := range FieldNames {
		out[i] = Field{Name: name, Value: *vals[i]}
	}
	return out
}

// Field is one name/value pair of a record.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered record view that marshals to a JSON object with keys
// in slice order.
type Fields []Field

// Without returns a copy of f minus the named field.
func (f Fields) Without(name string) Fields {
	out := make(Fields, 0, len(f))
	for _, fld := range f {
		if fld.Name != name {
			out = append(out, fld)
		}
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fld.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fld.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
