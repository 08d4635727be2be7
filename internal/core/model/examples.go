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

import "encoding/json"

// GetExampleRecord returns a fully scored record used as the few-shot example
// in the analysis prompt. It shows the model every expected key and that all
// values are strings.
func GetExampleRecord() *AnalysisRecord {
	return &AnalysisRecord{
		Filename:                           "example_file.mp4",
		CarType:                            "passenger",
		ServiceRelatedVideo:                "Yes",
		SoundAndImage:                      "Yes",
		ShowLicensePlate:                   "Yes",
		CarOnRamp:                          "Yes",
		ServiceAdvisorOrTechnicianName:     "Shane",
		DealershipName:                     "Yes",
		SpecialToolsTyres:                  "Yes",
		CustomerName:                       "Yes",
		SpecialToolsBrakePad:               "Yes",
		SpecialToolsDisc:                   "Yes",
		AttachedOfferMentioned:             "Yes",
		ApproveOfferMentioned:              "Yes",
		CorrectEnding:                      "Yes",
		ShowLicensePlateEval:               "5",
		CarOnRampEval:                      "5",
		ServiceAdvisorOrTechnicianNameEval: "10",
		DealershipNameEval:                 "1",
		CustomerNameEval:                   "1",
		SpecialToolsTyresEval:              "20",
		SpecialToolsBrakePadEval:           "20",
		SpecialToolsDiscEval:               "20",
		AttachedOfferMentionedEval:         "10",
		ApproveOfferMentionedEval:          "10",
		CorrectEndingEval:                  "5",
		TotalPointsEval:                    "100",
		Percentage:                         "100%",
		BatteryCheckedEval:                 "100%",
		WindScreenCheckedEval:              "100%",
		Summary:                            "description of the video",
		DiagnosticOrNot:                    "Diagnostic",
		Transcript:                         "transcript of the spoken audio",
		Comments:                           "points lost and why",
	}
}

// ExampleJSON renders the example record as the JSON array the model is
// asked to produce. video_url is filled in after analysis and is left out.
func ExampleJSON() (string, error) {
	fields := GetExampleRecord().Fields().Without(FieldVideoURL)
	b, err := json.MarshalIndent([]Fields{fields}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
