// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"

	"github.com/pdiddy/kb-engine/internal/waiter"
)

// Field names the knowledge base maps onto the index. These match the
// Bedrock console defaults.
const (
	vectorField   = "bedrock-knowledge-base-default-vector"
	textField     = "AMAZON_BEDROCK_TEXT_CHUNK"
	metadataField = "AMAZON_BEDROCK_METADATA"
)

// IndexCreator creates the knn vector index inside a collection.
// Implementations sign requests for the collection's data plane; tests
// supply a fake.
type IndexCreator interface {
	EnsureIndex(ctx context.Context, endpoint, name string, dimensions int) error
}

// OpenSearchIndexCreator talks to the collection endpoint with SigV4
// signing for the aoss service.
type OpenSearchIndexCreator struct {
	Cfg aws.Config
}

// EnsureIndex creates the vector index when it does not already exist.
// A fresh collection rejects writes for a short window after turning
// ACTIVE, so creation retries on authorization and connection errors.
func (c *OpenSearchIndexCreator) EnsureIndex(ctx context.Context, endpoint, name string, dimensions int) error {
	signer, err := requestsigner.NewSignerWithService(c.Cfg, "aoss")
	if err != nil {
		return fmt.Errorf("building request signer: %w", err)
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{endpoint},
			Signer:    signer,
		},
	})
	if err != nil {
		return fmt.Errorf("building OpenSearch client: %w", err)
	}

	body, err := indexBody(dimensions)
	if err != nil {
		return err
	}

	_, err = waiter.Retry(ctx, 0, func(ctx context.Context) (struct{}, error) {
		_, err := client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
			Index: name,
			Body:  strings.NewReader(body),
		})
		return struct{}{}, err
	}, isTransientIndexErr)
	if err != nil {
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	return nil
}

// isTransientIndexErr reports errors caused by the collection's
// post-creation propagation window.
func isTransientIndexErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "403") ||
		strings.Contains(msg, "authorization") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}

// indexBody builds the index settings and mappings for a Bedrock
// vector index: a FAISS hnsw knn field plus the text and metadata
// fields the knowledge base writes.
func indexBody(dimensions int) (string, error) {
	body := map[string]any{
		"settings": map[string]any{
			"index.knn": true,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				vectorField: map[string]any{
					"type":      "knn_vector",
					"dimension": dimensions,
					"method": map[string]any{
						"name":       "hnsw",
						"engine":     "faiss",
						"space_type": "l2",
					},
				},
				textField:     map[string]any{"type": "text"},
				metadataField: map[string]any{"type": "text", "index": false},
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding index body: %w", err)
	}
	return string(data), nil
}

// ensureVectorIndex drives the IndexCreator for the configured index.
func (p *Pipeline) ensureVectorIndex(ctx context.Context, endpoint string) error {
	if err := p.clients.Index.EnsureIndex(ctx, endpoint, p.cfg.VectorIndexName, p.cfg.EmbeddingDimensions); err != nil {
		return err
	}
	fmt.Fprintf(p.w, "ready   index %s\n", p.cfg.VectorIndexName)
	return nil
}
