// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provision creates the full knowledge base stack: S3 data
// buckets, the OpenSearch Serverless collection with its security and
// access policies, the vector index, the IAM service role, the
// Bedrock knowledge base, and its data sources. Every step checks for
// an existing resource before creating a new one, so a rerun converges
// on the same stack instead of duplicating it.
// See docs/ARCHITECTURE § Provisioning.
package provision

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pdiddy/kb-engine/pkg/types"
)

const (
	defaultNamePrefix      = "bedrock-kb"
	defaultVectorIndexName = "bedrock-knowledge-base-index"
	defaultEmbeddingModel  = "amazon.titan-embed-text-v2:0"
	defaultEmbeddingDims   = 1024
	defaultChunkMaxTokens  = 512
	defaultChunkOverlap    = 20
)

// Clients bundles the AWS facades the pipeline drives. Each field is a
// narrow interface so tests can supply fakes.
type Clients struct {
	S3    S3API
	IAM   IAMAPI
	AOSS  AOSSAPI
	Agent AgentAPI
	Index IndexCreator
}

// Identity carries the caller identity resolved at session setup.
type Identity struct {
	AccountID string
	CallerARN string
	Region    string
}

// Pipeline provisions one knowledge base stack.
type Pipeline struct {
	clients Clients
	id      Identity
	cfg     types.ProvisionConfig
	w       io.Writer
}

// New builds a Pipeline. Missing config fields are filled with derived
// defaults: a timestamp suffix, names built from the suffix, Titan
// Embed v2 with 1024 dimensions, and fixed-size chunking.
func New(clients Clients, id Identity, cfg types.ProvisionConfig, w io.Writer) *Pipeline {
	applyDefaults(&cfg)
	return &Pipeline{clients: clients, id: id, cfg: cfg, w: w}
}

func applyDefaults(cfg *types.ProvisionConfig) {
	if cfg.Suffix == "" {
		ts := time.Now().Format("20060102150405")
		cfg.Suffix = ts[len(ts)-7:]
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%s-%s", defaultNamePrefix, cfg.Suffix)
	}
	if cfg.Description == "" {
		cfg.Description = "Multi data source knowledge base."
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = []string{fmt.Sprintf("%s-data-1", cfg.Name)}
	}
	if cfg.VectorStoreName == "" {
		cfg.VectorStoreName = fmt.Sprintf("%s-%s-vs", defaultNamePrefix, cfg.Suffix)
	}
	if cfg.VectorIndexName == "" {
		cfg.VectorIndexName = defaultVectorIndexName
	}
	if cfg.EmbeddingModelID == "" {
		cfg.EmbeddingModelID = defaultEmbeddingModel
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = defaultEmbeddingDims
	}
	if cfg.Chunking == "" {
		cfg.Chunking = types.ChunkingFixedSize
	}
	if cfg.ChunkMaxTokens <= 0 {
		cfg.ChunkMaxTokens = defaultChunkMaxTokens
	}
	if cfg.ChunkOverlapPercent <= 0 {
		cfg.ChunkOverlapPercent = defaultChunkOverlap
	}
}

// Config returns the pipeline configuration after defaulting.
func (p *Pipeline) Config() types.ProvisionConfig {
	return p.cfg
}

// embeddingModelARN builds the regional ARN for the embedding model.
func (p *Pipeline) embeddingModelARN() string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", p.id.Region, p.cfg.EmbeddingModelID)
}

// Run provisions the stack end to end and returns its record. Steps
// run in dependency order; each reports `exists` or `created` on w.
// On failure the record built so far is returned alongside the error,
// so callers can persist what already exists for a later teardown.
func (p *Pipeline) Run(ctx context.Context) (*types.StackRecord, error) {
	rec := &types.StackRecord{
		Suffix:            p.cfg.Suffix,
		Region:            p.id.Region,
		AccountID:         p.id.AccountID,
		KnowledgeBaseName: p.cfg.Name,
		VectorIndexName:   p.cfg.VectorIndexName,
		Buckets:           p.cfg.Buckets,
	}

	for _, bucket := range p.cfg.Buckets {
		if err := p.ensureBucket(ctx, bucket); err != nil {
			return rec, fmt.Errorf("ensuring bucket %s: %w", bucket, err)
		}
	}

	role, err := p.ensureRole(ctx)
	if err != nil {
		return rec, fmt.Errorf("ensuring service role: %w", err)
	}
	rec.RoleName = role.Name
	rec.RoleARN = role.ARN

	coll, err := p.ensureCollection(ctx, role.ARN)
	if err != nil {
		return rec, fmt.Errorf("ensuring vector collection: %w", err)
	}
	rec.CollectionName = coll.Name
	rec.CollectionID = coll.ID
	rec.CollectionARN = coll.ARN
	rec.CollectionEndpoint = coll.Endpoint

	if err := p.ensureVectorIndex(ctx, coll.Endpoint); err != nil {
		return rec, fmt.Errorf("ensuring vector index: %w", err)
	}

	kb, err := p.ensureKnowledgeBase(ctx, role.ARN, coll.ARN)
	if err != nil {
		return rec, fmt.Errorf("ensuring knowledge base: %w", err)
	}
	rec.KnowledgeBaseID = kb.ID
	rec.KnowledgeBaseARN = kb.ARN

	sources, err := p.ensureDataSources(ctx, kb.ID)
	if err != nil {
		return rec, fmt.Errorf("ensuring data sources: %w", err)
	}
	rec.DataSources = sources

	fmt.Fprintf(p.w, "\nknowledge base %s ready (id %s)\n", rec.KnowledgeBaseName, rec.KnowledgeBaseID)
	return rec, nil
}
