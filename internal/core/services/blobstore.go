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
	"net/http"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"google.golang.org/api/iterator"
)

// BlobStore is put/list/delete of video objects plus signed read URLs.
type BlobStore interface {
	// Write stores data at obj, replacing any existing object.
	Write(ctx context.Context, obj cloud.GCSObject, data []byte, metadata map[string]string) error
	// List returns the objects in bucket whose name starts with prefix.
	List(ctx context.Context, bucket string, prefix string) ([]cloud.GCSObject, error)
	// Delete removes obj. A missing object fails with a NotFound error.
	Delete(ctx context.Context, obj cloud.GCSObject) error
	// SignedURL returns a GET URL for obj valid for expires.
	SignedURL(ctx context.Context, obj cloud.GCSObject, expires time.Duration) (string, error)
}

// GCSBlobStore is the BlobStore backed by Cloud Storage.
type GCSBlobStore struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient // Signs URLs when SignerEmail is set.
	SignerEmail   string
}

// NewGCSBlobStore returns a store using the given clients. iamClient and
// signerEmail may be empty, in which case signing falls back to the
// credentials detected by the storage client.
func NewGCSBlobStore(client *storage.Client, iamClient *credentials.IamCredentialsClient, signerEmail string) *GCSBlobStore {
	return &GCSBlobStore{StorageClient: client, IAMClient: iamClient, SignerEmail: signerEmail}
}

func (s *GCSBlobStore) Write(ctx context.Context, obj cloud.GCSObject, data []byte, metadata map[string]string) error {
	w := s.StorageClient.Bucket(obj.Bucket).Object(obj.Name).NewWriter(ctx)
	w.ContentType = obj.MIMEType
	w.Metadata = metadata
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return apierr.StorageUnavailable(fmt.Errorf("failed to write %s: %w", obj.URI(), err))
	}
	if err := w.Close(); err != nil {
		return apierr.StorageUnavailable(fmt.Errorf("failed to write %s: %w", obj.URI(), err))
	}
	return nil
}

func (s *GCSBlobStore) List(ctx context.Context, bucket string, prefix string) ([]cloud.GCSObject, error) {
	itr := s.StorageClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := make([]cloud.GCSObject, 0)
	for {
		attrs, err := itr.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apierr.StorageUnavailable(fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err))
		}
		out = append(out, cloud.GCSObject{Bucket: attrs.Bucket, Name: attrs.Name, MIMEType: attrs.ContentType})
	}
	return out, nil
}

func (s *GCSBlobStore) Delete(ctx context.Context, obj cloud.GCSObject) error {
	err := s.StorageClient.Bucket(obj.Bucket).Object(obj.Name).Delete(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return apierr.NotFound("file %s not found in storage", obj.Filename())
	default:
		return apierr.StorageUnavailable(fmt.Errorf("failed to delete %s: %w", obj.URI(), err))
	}
}

// SignedURL creates a V4 signed GET URL. When a signer service account is
// configured the signature is produced by the IAM Credentials SignBlob API,
// so no private key is needed on the host.
func (s *GCSBlobStore) SignedURL(ctx context.Context, obj cloud.GCSObject, expires time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expires),
	}
	if s.SignerEmail != "" && s.IAMClient != nil {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			}
			resp, err := s.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}

	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", apierr.StorageUnavailable(fmt.Errorf("Bucket(%q).SignedURL(%q): %w", obj.Bucket, obj.Name, err))
	}
	return u, nil
}

// folderPrefix is the listing prefix for folder, "" for the bucket root.
func folderPrefix(folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return ""
	}
	return folder + "/"
}
