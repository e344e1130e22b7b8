// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AWSConfig holds shared AWS session settings used by every stage that
// talks to the AWS APIs.
type AWSConfig struct {
	// Profile is the shared-config profile (typically an SSO profile).
	// Empty means the default credential chain, including AWS_PROFILE.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	// Region overrides the region from the shared config or AWS_REGION.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// ChunkingStrategy selects how documents are split during ingestion.
type ChunkingStrategy string

const (
	ChunkingFixedSize ChunkingStrategy = "fixed-size"
	ChunkingNone      ChunkingStrategy = "none"
)

// ProvisionConfig holds settings for the provisioning stage.
type ProvisionConfig struct {
	AWSConfig `yaml:",inline"`

	// Name is the knowledge base name. Empty derives a name from Suffix.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description is the knowledge base description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Suffix disambiguates resource names across runs. Empty derives a
	// suffix from the current timestamp.
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`

	// Buckets lists the S3 data source buckets. Empty derives a single
	// bucket name from the knowledge base name.
	Buckets []string `json:"buckets,omitempty" yaml:"buckets,omitempty"`

	// VectorStoreName is the OpenSearch Serverless collection name.
	// Empty derives a name from the knowledge base name.
	VectorStoreName string `json:"vector_store_name,omitempty" yaml:"vector_store_name,omitempty"`

	// VectorIndexName is the knn index inside the collection (default
	// "bedrock-knowledge-base-index").
	VectorIndexName string `json:"vector_index_name,omitempty" yaml:"vector_index_name,omitempty"`

	// EmbeddingModelID is the Bedrock embedding model (default
	// "amazon.titan-embed-text-v2:0").
	EmbeddingModelID string `json:"embedding_model_id,omitempty" yaml:"embedding_model_id,omitempty"`

	// EmbeddingDimensions is the vector dimension of the embedding model
	// (default 1024, matching Titan Embed v2).
	EmbeddingDimensions int `json:"embedding_dimensions,omitempty" yaml:"embedding_dimensions,omitempty"`

	// Chunking selects the ingestion chunking strategy (default fixed-size).
	Chunking ChunkingStrategy `json:"chunking,omitempty" yaml:"chunking,omitempty"`

	// ChunkMaxTokens is the chunk size for fixed-size chunking (default 512).
	ChunkMaxTokens int `json:"chunk_max_tokens,omitempty" yaml:"chunk_max_tokens,omitempty"`

	// ChunkOverlapPercent is the chunk overlap for fixed-size chunking
	// (default 20).
	ChunkOverlapPercent int `json:"chunk_overlap_percent,omitempty" yaml:"chunk_overlap_percent,omitempty"`
}

// IngestConfig holds settings for ingestion job polling.
type IngestConfig struct {
	// PollInterval is the delay between ingestion job status checks
	// (default 10s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Timeout bounds the wait for a single ingestion job (default 30m).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// QueryConfig holds settings for the query stage.
type QueryConfig struct {
	// ModelID is the foundation model used for generation (default
	// "amazon.nova-micro-v1:0").
	ModelID string `json:"model_id" yaml:"model_id"`

	// MaxResults is the number of chunks retrieved per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// WorkspaceConfig holds settings for local state.
type WorkspaceConfig struct {
	// Dir is the directory holding the resource registry database
	// (default ".kb-engine").
	Dir string `json:"dir" yaml:"dir"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Provision ProvisionConfig `json:"provision" yaml:"provision"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Query     QueryConfig     `json:"query" yaml:"query"`
	Workspace WorkspaceConfig `json:"workspace" yaml:"workspace"`
}
