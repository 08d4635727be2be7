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

package cloud

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// StorageScheme is the prefix of every Cloud Storage object URI.
const StorageScheme = "gs://"

// Objects written by the analyzer carry this metadata pair so bucket
// notifications for them can be told apart from external uploads.
const (
	MetadataSourceKey   = "source"
	MetadataSourceValue = "analyzer-api"
)

// GCSPubSubNotification is the JSON payload of a Cloud Storage Pub/Sub
// notification (OBJECT_FINALIZE and friends).
type GCSPubSubNotification struct {
	Kind        string            `json:"kind"`
	ID          string            `json:"id"`
	SelfLink    string            `json:"selfLink"`
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	Generation  string            `json:"generation"`
	ContentType string            `json:"contentType"`
	TimeCreated string            `json:"timeCreated"`
	Updated     string            `json:"updated"`
	Size        string            `json:"size"`
	MD5Hash     string            `json:"md5Hash"`
	MediaLink   string            `json:"mediaLink"`
	MetaData    map[string]string `json:"metadata"`
	ETag        string            `json:"etag"`
}

// GCSObject identifies one object in a bucket. Both the storage URI and the
// public URL of a stored video are derived from it, so the two always agree.
type GCSObject struct {
	Bucket   string
	Name     string // Full object name including the folder prefix.
	MIMEType string
}

// NewGCSObject builds the object for filename stored under folder in bucket.
func NewGCSObject(bucket, folder, filename string) GCSObject {
	name := filename
	if folder = strings.Trim(folder, "/"); folder != "" {
		name = folder + "/" + filename
	}
	return GCSObject{Bucket: bucket, Name: name}
}

// URI returns gs://<bucket>/<name>.
func (o GCSObject) URI() string {
	return StorageScheme + o.Bucket + "/" + o.Name
}

// PublicURL returns <base>/<bucket>/<name>.
func (o GCSObject) PublicURL(base string) string {
	return strings.TrimRight(base, "/") + "/" + o.Bucket + "/" + o.Name
}

// Folder returns the object prefix without the trailing slash.
func (o GCSObject) Folder() string {
	dir := path.Dir(o.Name)
	if dir == "." {
		return ""
	}
	return dir
}

// Filename returns the last path segment of the object name.
func (o GCSObject) Filename() string {
	return path.Base(o.Name)
}

// IsStorageURI reports whether in carries the gs:// scheme.
func IsStorageURI(in string) bool {
	return strings.HasPrefix(in, StorageScheme)
}

// ParseStorageURI splits gs://<bucket>/<name> into its parts.
func ParseStorageURI(uri string) (GCSObject, error) {
	if !IsStorageURI(uri) {
		return GCSObject{}, fmt.Errorf("not a storage uri: %q", uri)
	}
	bucket, name, ok := strings.Cut(strings.TrimPrefix(uri, StorageScheme), "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("storage uri %q must name a bucket and an object", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// ParsePublicURL is the inverse of GCSObject.PublicURL for the given base.
func ParsePublicURL(base, publicURL string) (GCSObject, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return GCSObject{}, fmt.Errorf("public url %q does not start with %q", publicURL, prefix)
	}
	bucket, name, ok := strings.Cut(strings.TrimPrefix(publicURL, prefix), "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("public url %q must name a bucket and an object", publicURL)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// LastPathSegment returns the final path segment of a URL or storage URI,
// ignoring any query string. It returns "" when there is none. Object names
// in storage URIs are taken verbatim: '#', '?' and '%' are part of the name.
func LastPathSegment(in string) string {
	if IsStorageURI(in) {
		obj, err := ParseStorageURI(in)
		if err != nil {
			return ""
		}
		return obj.Filename()
	}
	p := in
	if u, err := url.Parse(in); err == nil && u.Scheme != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
