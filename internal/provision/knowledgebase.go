// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"

	"github.com/pdiddy/kb-engine/internal/awsenv"
	"github.com/pdiddy/kb-engine/internal/waiter"
	"github.com/pdiddy/kb-engine/pkg/types"
)

// AgentAPI is the subset of the Bedrock Agent control plane used for
// the knowledge base and its data sources.
type AgentAPI interface {
	ListKnowledgeBases(ctx context.Context, params *bedrockagent.ListKnowledgeBasesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListKnowledgeBasesOutput, error)
	GetKnowledgeBase(ctx context.Context, params *bedrockagent.GetKnowledgeBaseInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetKnowledgeBaseOutput, error)
	CreateKnowledgeBase(ctx context.Context, params *bedrockagent.CreateKnowledgeBaseInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateKnowledgeBaseOutput, error)
	ListDataSources(ctx context.Context, params *bedrockagent.ListDataSourcesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListDataSourcesOutput, error)
	CreateDataSource(ctx context.Context, params *bedrockagent.CreateDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateDataSourceOutput, error)
}

// kbInfo carries the resolved knowledge base identity.
type kbInfo struct {
	ID  string
	ARN string
}

// ensureKnowledgeBase finds the knowledge base by name, or creates it
// against the collection and polls until ACTIVE. Bedrock has no
// get-by-name, so lookup pages through ListKnowledgeBases.
func (p *Pipeline) ensureKnowledgeBase(ctx context.Context, roleARN, collectionARN string) (kbInfo, error) {
	if info, ok, err := p.findKnowledgeBase(ctx, p.cfg.Name); err != nil {
		return kbInfo{}, err
	} else if ok {
		fmt.Fprintf(p.w, "exists  knowledge base %s\n", p.cfg.Name)
		return info, nil
	}

	create := func(ctx context.Context) (*bedrockagent.CreateKnowledgeBaseOutput, error) {
		return p.clients.Agent.CreateKnowledgeBase(ctx, &bedrockagent.CreateKnowledgeBaseInput{
			Name:        aws.String(p.cfg.Name),
			Description: aws.String(p.cfg.Description),
			RoleArn:     aws.String(roleARN),
			KnowledgeBaseConfiguration: &agenttypes.KnowledgeBaseConfiguration{
				Type: agenttypes.KnowledgeBaseTypeVector,
				VectorKnowledgeBaseConfiguration: &agenttypes.VectorKnowledgeBaseConfiguration{
					EmbeddingModelArn: aws.String(p.embeddingModelARN()),
				},
			},
			StorageConfiguration: &agenttypes.StorageConfiguration{
				Type: agenttypes.KnowledgeBaseStorageTypeOpensearchServerless,
				OpensearchServerlessConfiguration: &agenttypes.OpenSearchServerlessConfiguration{
					CollectionArn:   aws.String(collectionARN),
					VectorIndexName: aws.String(p.cfg.VectorIndexName),
					FieldMapping: &agenttypes.OpenSearchServerlessFieldMapping{
						VectorField:   aws.String(vectorField),
						TextField:     aws.String(textField),
						MetadataField: aws.String(metadataField),
					},
				},
			},
		})
	}

	// The role and index propagate asynchronously; ValidationException
	// during that window is retried alongside throttling.
	out, err := waiter.Retry(ctx, 0, create, func(err error) bool {
		return awsenv.IsThrottle(err) || awsenv.ErrorCode(err) == "ValidationException"
	})
	if err != nil {
		if awsenv.IsConflict(err) {
			// Lost a race with a concurrent run; re-read the winner.
			if info, ok, findErr := p.findKnowledgeBase(ctx, p.cfg.Name); findErr == nil && ok {
				return info, nil
			}
		}
		return kbInfo{}, fmt.Errorf("creating knowledge base: %w", err)
	}

	id := aws.ToString(out.KnowledgeBase.KnowledgeBaseId)
	arn := aws.ToString(out.KnowledgeBase.KnowledgeBaseArn)
	fmt.Fprintf(p.w, "created knowledge base %s (id %s), waiting for ACTIVE\n", p.cfg.Name, id)

	if err := p.waitKnowledgeBaseActive(ctx, id); err != nil {
		return kbInfo{}, err
	}
	return kbInfo{ID: id, ARN: arn}, nil
}

// findKnowledgeBase pages through the account's knowledge bases looking
// for a name match. ok is false when no knowledge base matches.
func (p *Pipeline) findKnowledgeBase(ctx context.Context, name string) (kbInfo, bool, error) {
	var nextToken *string
	for {
		out, err := p.clients.Agent.ListKnowledgeBases(ctx, &bedrockagent.ListKnowledgeBasesInput{
			MaxResults: aws.Int32(100),
			NextToken:  nextToken,
		})
		if err != nil {
			return kbInfo{}, false, fmt.Errorf("listing knowledge bases: %w", err)
		}

		for _, summary := range out.KnowledgeBaseSummaries {
			if aws.ToString(summary.Name) != name {
				continue
			}
			got, err := p.clients.Agent.GetKnowledgeBase(ctx, &bedrockagent.GetKnowledgeBaseInput{
				KnowledgeBaseId: summary.KnowledgeBaseId,
			})
			if err != nil {
				return kbInfo{}, false, fmt.Errorf("reading knowledge base %s: %w", aws.ToString(summary.KnowledgeBaseId), err)
			}
			return kbInfo{
				ID:  aws.ToString(got.KnowledgeBase.KnowledgeBaseId),
				ARN: aws.ToString(got.KnowledgeBase.KnowledgeBaseArn),
			}, true, nil
		}

		if out.NextToken == nil {
			return kbInfo{}, false, nil
		}
		nextToken = out.NextToken
	}
}

func (p *Pipeline) waitKnowledgeBaseActive(ctx context.Context, id string) error {
	return waiter.Poll(ctx, "knowledge base "+id, 0, 0, func(ctx context.Context) (bool, error) {
		out, err := p.clients.Agent.GetKnowledgeBase(ctx, &bedrockagent.GetKnowledgeBaseInput{
			KnowledgeBaseId: aws.String(id),
		})
		if err != nil {
			return false, fmt.Errorf("polling knowledge base: %w", err)
		}
		switch out.KnowledgeBase.Status {
		case agenttypes.KnowledgeBaseStatusFailed:
			return false, fmt.Errorf("knowledge base %s entered FAILED state", id)
		case agenttypes.KnowledgeBaseStatusActive:
			return true, nil
		default:
			return false, nil
		}
	})
}

// ensureDataSources creates one S3 data source per configured bucket,
// skipping buckets that already back an existing data source.
func (p *Pipeline) ensureDataSources(ctx context.Context, kbID string) ([]types.DataSourceRecord, error) {
	existing, err := p.clients.Agent.ListDataSources(ctx, &bedrockagent.ListDataSourcesInput{
		KnowledgeBaseId: aws.String(kbID),
		MaxResults:      aws.Int32(100),
	})
	if err != nil {
		return nil, fmt.Errorf("listing data sources: %w", err)
	}

	byName := make(map[string]agenttypes.DataSourceSummary, len(existing.DataSourceSummaries))
	for _, s := range existing.DataSourceSummaries {
		byName[aws.ToString(s.Name)] = s
	}

	var records []types.DataSourceRecord
	for _, bucket := range p.cfg.Buckets {
		dsName := fmt.Sprintf("s3-%s", bucket)

		if s, ok := byName[dsName]; ok {
			fmt.Fprintf(p.w, "exists  data source %s\n", dsName)
			records = append(records, types.DataSourceRecord{
				ID:     aws.ToString(s.DataSourceId),
				Name:   dsName,
				Bucket: bucket,
			})
			continue
		}

		out, err := p.clients.Agent.CreateDataSource(ctx, &bedrockagent.CreateDataSourceInput{
			KnowledgeBaseId: aws.String(kbID),
			Name:            aws.String(dsName),
			DataSourceConfiguration: &agenttypes.DataSourceConfiguration{
				Type: agenttypes.DataSourceTypeS3,
				S3Configuration: &agenttypes.S3DataSourceConfiguration{
					BucketArn: aws.String("arn:aws:s3:::" + bucket),
				},
			},
			VectorIngestionConfiguration: p.vectorIngestionConfig(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating data source %s: %w", dsName, err)
		}

		fmt.Fprintf(p.w, "created data source %s\n", dsName)
		records = append(records, types.DataSourceRecord{
			ID:     aws.ToString(out.DataSource.DataSourceId),
			Name:   dsName,
			Bucket: bucket,
		})
	}

	return records, nil
}

func (p *Pipeline) vectorIngestionConfig() *agenttypes.VectorIngestionConfiguration {
	chunking := &agenttypes.ChunkingConfiguration{}
	switch p.cfg.Chunking {
	case types.ChunkingNone:
		chunking.ChunkingStrategy = agenttypes.ChunkingStrategyNone
	default:
		chunking.ChunkingStrategy = agenttypes.ChunkingStrategyFixedSize
		chunking.FixedSizeChunkingConfiguration = &agenttypes.FixedSizeChunkingConfiguration{
			MaxTokens:         aws.Int32(int32(p.cfg.ChunkMaxTokens)),
			OverlapPercentage: aws.Int32(int32(p.cfg.ChunkOverlapPercent)),
		}
	}
	return &agenttypes.VectorIngestionConfiguration{
		ChunkingConfiguration: chunking,
	}
}
