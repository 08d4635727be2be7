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

// Package cloud holds the application configuration, the long-lived Google
// Cloud client handles and the helpers used to talk to Gemini, Cloud Storage
// and Pub/Sub.
//
// Configuration is loaded from TOML files, a base file followed by a
// runtime-specific override (see LoadConfig).
//
// Structs:
//   - Config: The top-level struct aggregating every section below.
//   - Storage: Bucket, folder and public URL settings for stored videos.
//   - BigQueryDataSource: Dataset and table holding analysis records.
//   - Download: Limits and retry policy of the outbound HTTP client.
//   - Sources: Which source strategies are enabled and how URLs are matched.
//   - Scraper: Headless browser settings for embed-page scraping.
//   - Server: HTTP listener and static asset settings.
//   - VertexAiLLMModel: Gemini model parameters.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings disables content blocking for every harm category.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Duration is a time.Duration that decodes from TOML strings such as "120s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type BigQueryDataSource struct {
	DatasetName   string `toml:"dataset"`        // The BigQuery dataset name.
	AnalysisTable string `toml:"analysis_table"` // The table holding one row per analyzed video.
}

type PromptTemplates struct {
	AnalysisPrompt string `toml:"analysis"` // text/template rendered with FILE_NAME, BRAND and EXAMPLE_JSON.
}

type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The Gemini model name.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. "text/plain".
	RateLimit          int     `toml:"rate_limit"`    // Requests per second allowed by the client-side limiter.
}

type TopicSubscription struct {
	Name             string `toml:"name"`               // The Pub/Sub subscription ID.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // Longest processing time per message before redelivery.
}

type Storage struct {
	Bucket            string   `toml:"bucket"`              // The bucket holding uploaded videos.
	Folder            string   `toml:"folder"`              // The object prefix (without trailing slash) for uploaded videos.
	PublicURLBase     string   `toml:"public_url_base"`     // Base of the public URL, e.g. https://storage.cloud.google.com.
	ListedExtensions  []string `toml:"listed_extensions"`   // Extensions returned by the file listing endpoint.
	SignedURLDuration Duration `toml:"signed_url_duration"` // Lifetime of signed playback URLs.
}

type Download struct {
	MaxBytes         int64    `toml:"max_bytes"`          // Upper bound on any in-memory video.
	Timeout          Duration `toml:"timeout"`            // Wall-clock limit for a single download.
	RetryMax         int      `toml:"retry_max"`          // Retries after the first attempt.
	RetryWaitMin     Duration `toml:"retry_wait_min"`     // Minimum backoff between retries.
	RetryWaitMax     Duration `toml:"retry_wait_max"`     // Maximum backoff between retries.
	RetryStatusCodes []int    `toml:"retry_status_codes"` // Status codes that trigger a retry.
	ProxyURL         string   `toml:"proxy_url"`          // Optional outbound proxy; empty disables it.
	UserAgent        string   `toml:"user_agent"`         // Browser user agent sent with downloads.
	CheckURLs        []string `toml:"check_urls"`         // URLs checked by the connectivity check endpoint.
}

type Sources struct {
	Strategies           []string `toml:"strategies"`             // Enabled strategies: storage, youtube, embed, direct, upload.
	YouTubeHosts         []string `toml:"youtube_hosts"`          // Hosts (and their subdomains) routed to the YouTube strategy.
	EmbedHosts           []string `toml:"embed_hosts"`            // Hosts (and their subdomains) routed to the scraping strategy.
	DirectExtensions     []string `toml:"direct_extensions"`      // URL path extensions fetched by direct download.
	UploadContentTypes   []string `toml:"upload_content_types"`   // Allowed declared content types of uploads.
	DefaultContentType   string   `toml:"default_content_type"`   // Content type used when none can be determined.
	DefaultFileExtension string   `toml:"default_file_extension"` // Extension used when a URL has none.
}

type Scraper struct {
	Headless        bool     `toml:"headless"`
	PageLoadTimeout Duration `toml:"page_load_timeout"` // Bound on navigation.
	ElementWait     Duration `toml:"element_wait"`      // Bound on waiting for the document body.
	SettleDelay     Duration `toml:"settle_delay"`      // Pause before reading page globals.
	Globals         []string `toml:"globals"`           // Script expressions tried in order, e.g. videoOptions.
	ProxyURL        string   `toml:"proxy_url"`
	WindowWidth     int      `toml:"window_width"`
	WindowHeight    int      `toml:"window_height"`
}

type Server struct {
	Port            int      `toml:"port"`
	StaticDir       string   `toml:"static_dir"` // Built single-page application; empty disables static serving.
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes"` // Multipart memory limit before spilling to temp files.
}

type Telemetry struct {
	Enabled bool   `toml:"enabled"`  // Export traces and metrics to Google Cloud.
	LogFile string `toml:"log_file"` // Optional file receiving a copy of every log line.
}

// Config is the root configuration object.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		Version                   string `toml:"version"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // Service account used to sign playback URLs.
		Brand                     string `toml:"brand"`                        // Vehicle brand substituted into the analysis prompt.
		AnalysisModel             string `toml:"analysis_model"`               // Key into AgentModels used for analysis.
	} `toml:"application"`
	Server             Server                       `toml:"server"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	Download           Download                     `toml:"download"`
	Sources            Sources                      `toml:"sources"`
	Scraper            Scraper                      `toml:"scraper"`
	Telemetry          Telemetry                    `toml:"telemetry"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by logical name, e.g. "UploadTopic".
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`        // Keyed by logical name, e.g. "evhc-pro".
}

// NewConfig returns a Config with initialized maps, ready to be decoded into.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}

// AnalysisAgent returns the model configuration selected for analysis.
func (c *Config) AnalysisAgent() (VertexAiLLMModel, bool) {
	m, ok := c.AgentModels[c.Application.AnalysisModel]
	return m, ok
}
