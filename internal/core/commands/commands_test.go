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

package commands_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"text/template"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/model"
	test "github.com/jaycherian/gcp-go-video-analyzer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(in interface{}) cor.Context {
	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	c.Add(cor.CtxIn, in)
	return c
}

func TestParseAnalysisReply(t *testing.T) {
	t.Run("fenced array with coercion", func(t *testing.T) {
		reply := "```json\n[{\"filename\": \"a.mp4\", \"total_points_eval\": 85, \"summary\": null, \"battery_checked_eval\": true, \"bogus\": \"x\"}]\n```"
		records, unknown, err := commands.ParseAnalysisReply(reply)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "a.mp4", records[0].Filename)
		assert.Equal(t, "85", records[0].TotalPointsEval)
		assert.Equal(t, "", records[0].Summary)
		assert.Equal(t, "true", records[0].BatteryCheckedEval)
		assert.Equal(t, "", records[0].CarType)
		assert.Equal(t, []string{"bogus"}, unknown)
	})

	t.Run("model reported error", func(t *testing.T) {
		_, _, err := commands.ParseAnalysisReply(`{"data": "The video is not related to a car service."}`)
		require.Error(t, err)
		e := apierr.From(err)
		assert.Equal(t, http.StatusBadRequest, e.Status)
		assert.Equal(t, apierr.CodeModelReportedError, e.Code)
		assert.Contains(t, err.Error(), "not related to a car service")
	})

	malformed := map[string]string{
		"not json":           "I cannot analyze this video.",
		"empty array":        "[]",
		"array of strings":   `["a", "b"]`,
		"object":             `{"filename": "a.mp4"}`,
		"number":             `42`,
		"trailing garbage":   `[{"filename": "a.mp4"}] and more`,
		"truncated":          `[{"filename": "a.mp4"`,
		"empty":              "",
		"fence without body": "```json\n```",
	}
	for name, reply := range malformed {
		t.Run(name, func(t *testing.T) {
			_, _, err := commands.ParseAnalysisReply(reply)
			require.Error(t, err)
			assert.Equal(t, apierr.CodeMalformedModelOutput, apierr.From(err).Code)
			assert.Equal(t, http.StatusInternalServerError, apierr.From(err).Status)
		})
	}
}

func TestFinalizeIsPure(t *testing.T) {
	parsed := model.GetExampleRecord()
	parsed.Filename = "whatever-the-model-said.mp4"
	records := []*model.AnalysisRecord{parsed}
	upload := &model.UploadResult{
		StorageURI: "gs://bucket/uploads/real.mp4",
		PublicURL:  "https://storage.cloud.google.com/bucket/uploads/real.mp4",
	}

	first := commands.Finalize(records, upload)
	second := commands.Finalize(records, upload)
	assert.Equal(t, first, second)

	got := first.Response[0]
	assert.Equal(t, "real.mp4", got.Filename)
	assert.Equal(t, upload.PublicURL, got.VideoURL)
	assert.Equal(t, []string{parsed.Summary}, first.Summary)

	// The parsed input is left untouched.
	assert.Equal(t, "whatever-the-model-said.mp4", parsed.Filename)
	assert.Equal(t, "", parsed.VideoURL)
}

func TestFinalizeStorageURIHasNoPublicURL(t *testing.T) {
	resp := commands.Finalize([]*model.AnalysisRecord{{Filename: "a.mp4", Summary: "s"}},
		&model.UploadResult{StorageURI: "gs://bucket/folder/a.mp4"})
	assert.Equal(t, "", resp.Response[0].VideoURL)
	assert.Equal(t, "a.mp4", resp.Response[0].Filename)
}

func TestFinalizeKeepsStoredObjectNameVerbatim(t *testing.T) {
	for _, name := range []string{"clip #2.mp4", "what?.mp4", "my%20video.mp4", "plain.mp4"} {
		t.Run(name, func(t *testing.T) {
			obj := cloud.NewGCSObject("b", "uploads", name)
			resp := commands.Finalize([]*model.AnalysisRecord{{Filename: "model.mp4"}},
				&model.UploadResult{StorageURI: obj.URI(), PublicURL: obj.PublicURL("https://storage.cloud.google.com")})
			assert.Equal(t, name, resp.Response[0].Filename)
		})
	}
}

func TestVideoAnalysisPromptUsesStoredObjectName(t *testing.T) {
	fake := &test.FakeModel{Reply: `[{"filename": "x.mp4"}]`}
	cmd := commands.NewVideoAnalysis("analysis", fake, promptTemplate(t), "Ford")

	cmd.Execute(newContext(&model.UploadResult{StorageURI: cloud.NewGCSObject("b", "f", "clip #2.mp4").URI(), MIMEType: "video/mp4"}))

	assert.Contains(t, fake.LastPrompt(), "Analyze clip #2.mp4 for Ford.")
}

func TestAnalysisFinalizeSwallowsPersistenceFailure(t *testing.T) {
	warehouse := test.NewMemoryWarehouse()
	warehouse.InsertErr = apierr.PersistenceFailed(errors.New("table not found"))
	cmd := commands.NewAnalysisFinalize("finalize", warehouse)

	ctx := newContext([]*model.AnalysisRecord{{Filename: "x.mp4", Summary: "fine"}})
	ctx.Add(model.KeyUpload, &model.UploadResult{StorageURI: "gs://b/f/x.mp4", PublicURL: "https://h/b/f/x.mp4"})
	require.True(t, cmd.IsExecutable(ctx))
	cmd.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	outcome := ctx.Get(model.KeyPersistence).(model.PersistenceOutcome)
	assert.True(t, outcome.Attempted)
	assert.False(t, outcome.OK())
	assert.ErrorContains(t, outcome.Err, "table not found")

	resp := ctx.Get(cor.CtxOut).(*model.AnalysisResponse)
	assert.Equal(t, []string{"fine"}, resp.Summary)
	assert.Equal(t, model.StageDone, ctx.Get(model.KeyStage))
}

func TestAnalysisFinalizePersistsFirstRecord(t *testing.T) {
	warehouse := test.NewMemoryWarehouse()
	cmd := commands.NewAnalysisFinalize("finalize", warehouse)

	ctx := newContext([]*model.AnalysisRecord{{Filename: "model.mp4"}, {Filename: "second.mp4"}})
	ctx.Add(model.KeyUpload, &model.UploadResult{StorageURI: "gs://b/f/x.mp4", PublicURL: "https://h/b/f/x.mp4"})
	cmd.Execute(ctx)

	rows := warehouse.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "x.mp4", rows[0].Filename)
	assert.Equal(t, "https://h/b/f/x.mp4", rows[0].VideoURL)
	assert.True(t, ctx.Get(model.KeyPersistence).(model.PersistenceOutcome).OK())
}

type countingUploader struct {
	calls int
}

func (u *countingUploader) UploadVideo(_ context.Context, v *model.InlineBytes) (*model.UploadResult, error) {
	u.calls++
	return &model.UploadResult{StorageURI: "gs://b/f/" + v.Filename, PublicURL: "https://h/b/f/" + v.Filename, MIMEType: v.ContentType}, nil
}

func TestGCSVideoUploadSkipsStorageURI(t *testing.T) {
	uploader := &countingUploader{}
	cmd := commands.NewGCSVideoUpload("upload", uploader, "video/mp4")

	ctx := newContext(model.StorageURI{URI: "gs://b/f/a.mp4"})
	cmd.Execute(ctx)

	require.False(t, ctx.HasErrors())
	assert.Zero(t, uploader.calls)
	res := ctx.Get(model.KeyUpload).(*model.UploadResult)
	assert.Equal(t, "gs://b/f/a.mp4", res.StorageURI)
	assert.Equal(t, "", res.PublicURL)
	assert.Equal(t, "video/mp4", res.MIMEType)
}

func TestGCSVideoUploadStoresInlineBytes(t *testing.T) {
	uploader := &countingUploader{}
	cmd := commands.NewGCSVideoUpload("upload", uploader, "video/mp4")

	ctx := newContext(&model.InlineBytes{Filename: "a.webm", ContentType: "video/webm", Data: []byte("x")})
	cmd.Execute(ctx)

	require.False(t, ctx.HasErrors())
	assert.Equal(t, 1, uploader.calls)
	assert.Equal(t, model.StageUploaded, ctx.Get(model.KeyStage))
	assert.Equal(t, "https://h/b/f/a.webm", ctx.Get(cor.CtxOut).(*model.UploadResult).PublicURL)
}

func promptTemplate(t *testing.T) *template.Template {
	tmpl, err := template.New("analysis").Parse("Analyze {{.FILE_NAME}} for {{.BRAND}}. Example: {{.EXAMPLE_JSON}}")
	require.NoError(t, err)
	return tmpl
}

func TestVideoAnalysisSendsFileAndPrompt(t *testing.T) {
	fake := &test.FakeModel{Reply: `[{"filename": "clip.mp4", "summary": "ok"}]`}
	cmd := commands.NewVideoAnalysis("analysis", fake, promptTemplate(t), "Ford")

	ctx := newContext(&model.UploadResult{StorageURI: "gs://b/f/clip.mp4", MIMEType: "video/mp4"})
	cmd.Execute(ctx)

	require.False(t, ctx.HasErrors())
	assert.Equal(t, 1, fake.Calls)
	prompt := fake.LastPrompt()
	assert.Contains(t, prompt, "Analyze clip.mp4 for Ford.")
	assert.Contains(t, prompt, `"car_type": "passenger"`)
	assert.NotContains(t, prompt, "video_url")

	file := fake.LastFileData()
	require.NotNil(t, file)
	assert.Equal(t, "gs://b/f/clip.mp4", file.FileURI)
	assert.Equal(t, "video/mp4", file.MIMEType)

	records := ctx.Get(cor.CtxOut).([]*model.AnalysisRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Summary)
}

func TestVideoAnalysisModelFailureIsUnavailable(t *testing.T) {
	fake := &test.FakeModel{Err: errors.New("quota exceeded")}
	cmd := commands.NewVideoAnalysis("analysis", fake, promptTemplate(t), "Ford")

	ctx := newContext(&model.UploadResult{StorageURI: "gs://b/f/clip.mp4", MIMEType: "video/mp4"})
	cmd.Execute(ctx)

	err := ctx.GetErrors()["analysis"]
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeModelUnavailable))
	assert.Nil(t, ctx.Get(cor.CtxOut))
}

func TestVideoAnalysisPropagatesModelRejection(t *testing.T) {
	fake := &test.FakeModel{Reply: `{"data": "not a service video"}`}
	cmd := commands.NewVideoAnalysis("analysis", fake, promptTemplate(t), "Ford")

	ctx := newContext(&model.UploadResult{StorageURI: "gs://b/f/clip.mp4", MIMEType: "video/mp4"})
	cmd.Execute(ctx)

	assert.True(t, apierr.IsCode(ctx.FirstError(), apierr.CodeModelReportedError))
}

func TestSourceResolveRecordsStage(t *testing.T) {
	r := resolverFunc(func(_ context.Context, req *model.AnalysisRequest) (model.VideoReference, error) {
		return model.StorageURI{URI: req.URL}, nil
	})
	cmd := commands.NewSourceResolve("resolve", r)

	ctx := newContext(&model.AnalysisRequest{URL: "gs://b/a.mp4"})
	cmd.Execute(ctx)

	assert.Equal(t, model.StageSourceResolved, ctx.Get(model.KeyStage))
	assert.Equal(t, model.StorageURI{URI: "gs://b/a.mp4"}, ctx.Get(cor.CtxOut))
}

type resolverFunc func(ctx context.Context, req *model.AnalysisRequest) (model.VideoReference, error)

func (f resolverFunc) Resolve(ctx context.Context, req *model.AnalysisRequest) (model.VideoReference, error) {
	return f(ctx, req)
}

func TestGCSNotificationToRequest(t *testing.T) {
	cmd := commands.NewGCSNotificationToRequest("trigger", "uploads", []string{".mp4", ".webm"})

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "external upload", payload: test.GetTestNotificationText("bkt", "uploads/a.mp4", ""), want: "gs://bkt/uploads/a.mp4"},
		{name: "written by analyzer", payload: test.GetTestNotificationText("bkt", "uploads/a.mp4", cloud.MetadataSourceValue)},
		{name: "other folder", payload: test.GetTestNotificationText("bkt", "elsewhere/a.mp4", "")},
		{name: "not a video", payload: test.GetTestNotificationText("bkt", "uploads/a.txt", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(tt.payload)
			cmd.Execute(ctx)
			require.False(t, ctx.HasErrors())
			out := ctx.Get(cor.CtxOut)
			if tt.want == "" {
				assert.Nil(t, out)
				return
			}
			require.NotNil(t, out)
			assert.Equal(t, tt.want, out.(*model.AnalysisRequest).URL)
		})
	}

	ctx := newContext("not json")
	cmd.Execute(ctx)
	assert.True(t, ctx.HasErrors())
}
