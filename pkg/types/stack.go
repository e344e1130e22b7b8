// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared configuration and resource records
// used across provisioning, ingestion, and query stages.
package types

import "time"

// DataSourceRecord identifies one Bedrock data source and its backing
// S3 bucket.
type DataSourceRecord struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// StackRecord describes one provisioned knowledge base stack: the
// knowledge base itself plus every supporting resource created for it.
// Records are persisted in the local registry so that status, ingest,
// query, and teardown runs can find the stack without scanning the
// account.
type StackRecord struct {
	// Suffix is the name-disambiguation suffix used for every resource
	// in the stack.
	Suffix string `json:"suffix" yaml:"suffix"`

	// Region is the region the stack was provisioned in.
	Region string `json:"region" yaml:"region"`

	// AccountID is the owning AWS account.
	AccountID string `json:"account_id" yaml:"account_id"`

	KnowledgeBaseName string `json:"knowledge_base_name" yaml:"knowledge_base_name"`
	KnowledgeBaseID   string `json:"knowledge_base_id" yaml:"knowledge_base_id"`
	KnowledgeBaseARN  string `json:"knowledge_base_arn" yaml:"knowledge_base_arn"`

	RoleName string `json:"role_name" yaml:"role_name"`
	RoleARN  string `json:"role_arn" yaml:"role_arn"`

	CollectionName     string `json:"collection_name" yaml:"collection_name"`
	CollectionID       string `json:"collection_id" yaml:"collection_id"`
	CollectionARN      string `json:"collection_arn" yaml:"collection_arn"`
	CollectionEndpoint string `json:"collection_endpoint" yaml:"collection_endpoint"`

	// VectorIndexName is the knn index created inside the collection.
	VectorIndexName string `json:"vector_index_name" yaml:"vector_index_name"`

	// Buckets lists the S3 data buckets, in data source order.
	Buckets []string `json:"buckets" yaml:"buckets"`

	// DataSources lists the Bedrock data sources attached to the
	// knowledge base.
	DataSources []DataSourceRecord `json:"data_sources" yaml:"data_sources"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// PrimaryBucket returns the first data bucket, or "" when the stack has
// no buckets.
func (r *StackRecord) PrimaryBucket() string {
	if len(r.Buckets) == 0 {
		return ""
	}
	return r.Buckets[0]
}
