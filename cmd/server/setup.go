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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jaycherian/gcp-go-video-analyzer/internal/api"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/resolver"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/services"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/workflow"
)

// StateManager holds the dependencies built once at start-up.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	resolver *resolver.Resolver
	media    *services.MediaService
	records  *services.RecordService
	analysis *workflow.VideoAnalysisWorkflow
}

var state = &StateManager{}

// SetupOS points the configuration loader at ./configs with the "local"
// runtime unless the environment already selects something else.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads the layered TOML configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config != nil {
		return state.config, nil
	}
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup environment: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	state.config = config
	return config, nil
}

// InitState creates the cloud clients and wires the services and workflows
// on top of them.
//
// Inputs:
//   - ctx: The root context; listeners stop when it is cancelled.
//   - config: The loaded configuration.
//
// Outputs:
//   - error: The first client or wiring failure.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	analysisModel, ok := cloudClients.AgentModels[config.Application.AnalysisModel]
	if !ok {
		return fmt.Errorf("analysis model %q is not configured under agent_models", config.Application.AnalysisModel)
	}

	if state.resolver, err = resolver.NewResolver(config); err != nil {
		return err
	}

	blobs := services.NewGCSBlobStore(cloudClients.StorageClient, cloudClients.IAMClient, config.Application.SignerServiceAccountEmail)
	state.media = services.NewMediaService(blobs, config.Storage)

	warehouse := services.NewBigQueryWarehouse(
		cloudClients.BiqQueryClient,
		config.BigQueryDataSource.DatasetName,
		config.BigQueryDataSource.AnalysisTable)
	state.records = services.NewRecordService(warehouse, state.media)

	state.analysis, err = workflow.NewVideoAnalysisWorkflow(config, workflow.Dependencies{
		Resolver:  state.resolver,
		Uploader:  state.media,
		Model:     analysisModel,
		Warehouse: warehouse,
	})
	if err != nil {
		return err
	}

	SetupListeners(ctx, config, cloudClients, state.analysis)
	return nil
}

// NewAPI exposes the initialized state over HTTP.
func NewAPI(config *cloud.Config) *api.API {
	return &api.API{
		Analyzer:  state.analysis,
		Resolver:  state.resolver,
		Checker:   state.resolver.Downloader(),
		Records:   state.records,
		Media:     state.media,
		Version:   config.Application.Version,
		StaticDir: config.Server.StaticDir,
		CheckURLs: config.Download.CheckURLs,
		ProxyURL:  config.Download.ProxyURL,
	}
}
