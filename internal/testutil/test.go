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

// Package test provides helpers and in-memory fakes for the test suites:
// loading the test configuration, sample bucket notifications, and fakes for
// the blob store, the warehouse and the generative model.
package test

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
)

// StateManager caches the test configuration so it is decoded once per run.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// ConfigDir returns the absolute path of the repository's configs directory,
// independent of the working directory of the test binary.
func ConfigDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "configs"
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at the test configuration.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig returns the test configuration: configs/.env.toml overlaid with
// configs/.env.test.toml. Callers must not modify the returned value; use
// CopyConfig for a private copy.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// CopyConfig returns a shallow copy of the test configuration that a test may
// modify freely at the top level.
func CopyConfig() *cloud.Config {
	c := *GetConfig()
	return &c
}

// GetTestNotificationText returns the Pub/Sub payload Cloud Storage sends
// when bucket/name is finalized. source, when not empty, is set as the
// object's source metadata.
func GetTestNotificationText(bucket string, name string, source string) string {
	metadata := `{}`
	if source != "" {
		metadata = `{ "` + cloud.MetadataSourceKey + `": "` + source + `" }`
	}
	return `{
  "kind": "storage#object",
  "id": "` + bucket + `/` + name + `/1728615848664286",
  "selfLink": "https://www.googleapis.com/storage/v1/b/` + bucket + `/o/` + name + `",
  "name": "` + name + `",
  "bucket": "` + bucket + `",
  "generation": "1728615848664286",
  "metageneration": "1",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "storageClass": "STANDARD",
  "size": "259348037",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "metadata": ` + metadata + `,
  "crc32c": "IYeSTw==",
  "etag": "CN658+yrhYkDEAE="
}`
}
