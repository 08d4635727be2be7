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

package apierr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/stretchr/testify/assert"
)

func TestConstructorsMapToStatusAndCode(t *testing.T) {
	cases := []struct {
		err    *apierr.Error
		status int
		code   string
	}{
		{apierr.InvalidInput("need exactly one source"), http.StatusUnprocessableEntity, apierr.CodeInvalidInput},
		{apierr.UnrecognizedURL("no strategy for %s", "ftp://x"), http.StatusBadRequest, apierr.CodeInvalidInput},
		{apierr.UnsupportedMediaType("video/quicktime"), http.StatusBadRequest, apierr.CodeUnsupportedMediaType},
		{apierr.DownloadFailed(errors.New("404")), http.StatusBadRequest, apierr.CodeDownloadFailed},
		{apierr.TooLarge(1024), http.StatusRequestEntityTooLarge, apierr.CodeTooLarge},
		{apierr.ScrapeFailed("no video"), http.StatusBadRequest, apierr.CodeScrapeFailed},
		{apierr.BrowserFailed(errors.New("crashed")), http.StatusInternalServerError, apierr.CodeScrapeFailed},
		{apierr.ModelReportedError("unsupported language"), http.StatusBadRequest, apierr.CodeModelReportedError},
		{apierr.MalformedModelOutput(errors.New("eof")), http.StatusInternalServerError, apierr.CodeMalformedModelOutput},
		{apierr.ModelUnavailable(errors.New("quota")), http.StatusInternalServerError, apierr.CodeModelUnavailable},
		{apierr.StorageUnavailable(errors.New("down")), http.StatusInternalServerError, apierr.CodeStorageUnavailable},
		{apierr.PersistenceFailed(errors.New("insert")), http.StatusInternalServerError, apierr.CodePersistenceFailed},
		{apierr.NotFound("no record for %s", "a.mp4"), http.StatusNotFound, apierr.CodeNotFound},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, c.err.Status, c.err.Error())
		assert.Equal(t, c.code, c.err.Code, c.err.Error())
	}
}

func TestMessagesComeFromTheWrappedError(t *testing.T) {
	assert.Equal(t, "unsupported language", apierr.ModelReportedError("unsupported language").Error())
	assert.Equal(t, "no record for a.mp4", apierr.NotFound("no record for %s", "a.mp4").Error())
	assert.Equal(t, "video exceeds the maximum size of 1024 bytes", apierr.TooLarge(1024).Error())
	assert.Equal(t, apierr.CodeNotFound, (&apierr.Error{Code: apierr.CodeNotFound}).Error())
}

func TestFromFindsWrappedErrors(t *testing.T) {
	inner := apierr.NotFound("missing")
	wrapped := fmt.Errorf("lookup: %w", inner)

	assert.Same(t, inner, apierr.From(wrapped))
	assert.True(t, apierr.IsCode(wrapped, apierr.CodeNotFound))
	assert.False(t, apierr.IsCode(wrapped, apierr.CodeTooLarge))
	assert.True(t, errors.Is(wrapped, &apierr.Error{Code: apierr.CodeNotFound}))
}

func TestFromTreatsUnknownErrorsAsInternal(t *testing.T) {
	assert.Nil(t, apierr.From(nil))

	plain := errors.New("boom")
	got := apierr.From(plain)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, apierr.CodeInternal, got.Code)
	assert.ErrorIs(t, got, plain)
	assert.False(t, apierr.IsCode(plain, apierr.CodeInternal))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, apierr.IsTransient(nil))
	assert.True(t, apierr.IsTransient(errors.New("connection reset")))
	assert.True(t, apierr.IsTransient(fmt.Errorf("analyze: %w", apierr.ModelUnavailable(errors.New("quota")))))
	assert.True(t, apierr.IsTransient(apierr.StorageUnavailable(errors.New("down"))))

	assert.False(t, apierr.IsTransient(apierr.MalformedModelOutput(errors.New("not json"))))
	assert.False(t, apierr.IsTransient(apierr.BrowserFailed(errors.New("crashed"))))
	assert.False(t, apierr.IsTransient(apierr.ModelReportedError("unsupported language")))
	assert.False(t, apierr.IsTransient(apierr.NotFound("missing")))
}
