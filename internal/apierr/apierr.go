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

// Package apierr defines the typed failures of the analysis pipeline and the
// HTTP status each of them maps to.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. They are returned to clients in the "code" field.
const (
	CodeInvalidInput         = "invalid_input"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeDownloadFailed       = "download_failed"
	CodeTooLarge             = "too_large"
	CodeScrapeFailed         = "scrape_failed"
	CodeModelReportedError   = "model_reported_error"
	CodeMalformedModelOutput = "malformed_model_output"
	CodeModelUnavailable     = "model_unavailable"
	CodeStorageUnavailable   = "storage_unavailable"
	CodePersistenceFailed    = "persistence_failed"
	CodeNotFound             = "not_found"
	CodeInternal             = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so callers can test with
// errors.Is(err, &apierr.Error{Code: apierr.CodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func newf(status int, code string, format string, args ...any) *Error {
	return New(status, code, fmt.Errorf(format, args...))
}

// InvalidInput reports a malformed request, e.g. zero or several sources.
func InvalidInput(format string, args ...any) *Error {
	return newf(http.StatusUnprocessableEntity, CodeInvalidInput, format, args...)
}

// UnrecognizedURL reports a URL that no enabled source strategy accepts.
func UnrecognizedURL(format string, args ...any) *Error {
	return newf(http.StatusBadRequest, CodeInvalidInput, format, args...)
}

func UnsupportedMediaType(format string, args ...any) *Error {
	return newf(http.StatusBadRequest, CodeUnsupportedMediaType, format, args...)
}

func DownloadFailed(err error) *Error {
	return New(http.StatusBadRequest, CodeDownloadFailed, err)
}

// TooLarge reports content exceeding the configured size cap.
func TooLarge(limit int64) *Error {
	return newf(http.StatusRequestEntityTooLarge, CodeTooLarge, "video exceeds the maximum size of %d bytes", limit)
}

// ScrapeFailed reports a page that exposes no usable video source.
func ScrapeFailed(format string, args ...any) *Error {
	return newf(http.StatusBadRequest, CodeScrapeFailed, format, args...)
}

// BrowserFailed reports a failure of the browser automation itself.
func BrowserFailed(err error) *Error {
	return New(http.StatusInternalServerError, CodeScrapeFailed, err)
}

// ModelReportedError carries the model's own refusal message verbatim.
func ModelReportedError(message string) *Error {
	return New(http.StatusBadRequest, CodeModelReportedError, errors.New(message))
}

func MalformedModelOutput(err error) *Error {
	return New(http.StatusInternalServerError, CodeMalformedModelOutput, err)
}

func ModelUnavailable(err error) *Error {
	return New(http.StatusInternalServerError, CodeModelUnavailable, err)
}

func StorageUnavailable(err error) *Error {
	return New(http.StatusInternalServerError, CodeStorageUnavailable, err)
}

func PersistenceFailed(err error) *Error {
	return New(http.StatusInternalServerError, CodePersistenceFailed, err)
}

func NotFound(format string, args ...any) *Error {
	return newf(http.StatusNotFound, CodeNotFound, format, args...)
}

// From returns the *Error in err's chain, or wraps err as an internal error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}

// IsCode reports whether err carries an *Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// transientCodes are failures a later attempt with the same input may not
// repeat. Everything else, including a malformed model reply, is
// deterministic for a given video.
var transientCodes = map[string]bool{
	CodeModelUnavailable:   true,
	CodeStorageUnavailable: true,
	CodeInternal:           true,
}

// IsTransient reports whether retrying the operation that produced err can
// succeed. Errors that carry no *Error are treated as internal and transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return transientCodes[From(err).Code]
}
