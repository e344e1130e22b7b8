// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	oss "github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	osstypes "github.com/aws/aws-sdk-go-v2/service/opensearchserverless/types"

	"github.com/pdiddy/kb-engine/internal/awsenv"
	"github.com/pdiddy/kb-engine/internal/waiter"
)

// AOSSAPI is the subset of the OpenSearch Serverless client used for
// the vector collection.
type AOSSAPI interface {
	BatchGetCollection(ctx context.Context, params *oss.BatchGetCollectionInput, optFns ...func(*oss.Options)) (*oss.BatchGetCollectionOutput, error)
	CreateCollection(ctx context.Context, params *oss.CreateCollectionInput, optFns ...func(*oss.Options)) (*oss.CreateCollectionOutput, error)
	CreateSecurityPolicy(ctx context.Context, params *oss.CreateSecurityPolicyInput, optFns ...func(*oss.Options)) (*oss.CreateSecurityPolicyOutput, error)
	CreateAccessPolicy(ctx context.Context, params *oss.CreateAccessPolicyInput, optFns ...func(*oss.Options)) (*oss.CreateAccessPolicyOutput, error)
}

// collectionInfo carries the resolved collection identity.
type collectionInfo struct {
	Name     string
	ID       string
	ARN      string
	Endpoint string
}

// ensureCollection finds or creates the VECTORSEARCH collection. A new
// collection requires encryption, network, and data-access policies in
// place first; creation then polls until the collection is ACTIVE and
// its endpoint is published.
func (p *Pipeline) ensureCollection(ctx context.Context, roleARN string) (collectionInfo, error) {
	name := p.cfg.VectorStoreName

	if info, ok, err := p.lookupCollection(ctx, name); err != nil {
		return collectionInfo{}, err
	} else if ok {
		fmt.Fprintf(p.w, "exists  collection %s\n", name)
		return info, nil
	}

	if err := p.ensureCollectionPolicies(ctx, name, roleARN); err != nil {
		return collectionInfo{}, err
	}

	_, err := p.clients.AOSS.CreateCollection(ctx, &oss.CreateCollectionInput{
		Name:        aws.String(name),
		Type:        osstypes.CollectionTypeVectorsearch,
		Description: aws.String("Vector store for the Bedrock knowledge base"),
	})
	if err != nil && !awsenv.IsConflict(err) {
		return collectionInfo{}, fmt.Errorf("creating collection: %w", err)
	}

	fmt.Fprintf(p.w, "created collection %s, waiting for ACTIVE\n", name)
	return p.waitCollectionActive(ctx, name)
}

// lookupCollection fetches the collection by name. ok is false when
// the collection does not exist.
func (p *Pipeline) lookupCollection(ctx context.Context, name string) (collectionInfo, bool, error) {
	out, err := p.clients.AOSS.BatchGetCollection(ctx, &oss.BatchGetCollectionInput{
		Names: []string{name},
	})
	if err != nil {
		return collectionInfo{}, false, fmt.Errorf("checking collection: %w", err)
	}
	if len(out.CollectionDetails) == 0 {
		return collectionInfo{}, false, nil
	}

	d := out.CollectionDetails[0]
	return collectionInfo{
		Name:     aws.ToString(d.Name),
		ID:       aws.ToString(d.Id),
		ARN:      aws.ToString(d.Arn),
		Endpoint: aws.ToString(d.CollectionEndpoint),
	}, true, nil
}

func (p *Pipeline) waitCollectionActive(ctx context.Context, name string) (collectionInfo, error) {
	var info collectionInfo
	err := waiter.Poll(ctx, "collection "+name, 0, 0, func(ctx context.Context) (bool, error) {
		out, err := p.clients.AOSS.BatchGetCollection(ctx, &oss.BatchGetCollectionInput{
			Names: []string{name},
		})
		if err != nil {
			return false, fmt.Errorf("polling collection: %w", err)
		}
		if len(out.CollectionDetails) == 0 {
			return false, nil
		}

		d := out.CollectionDetails[0]
		switch d.Status {
		case osstypes.CollectionStatusFailed:
			return false, fmt.Errorf("collection %s entered FAILED state", name)
		case osstypes.CollectionStatusActive:
			info = collectionInfo{
				Name:     aws.ToString(d.Name),
				ID:       aws.ToString(d.Id),
				ARN:      aws.ToString(d.Arn),
				Endpoint: aws.ToString(d.CollectionEndpoint),
			}
			// The endpoint publishes shortly after ACTIVE; wait for it.
			return info.Endpoint != "", nil
		default:
			return false, nil
		}
	})
	if err != nil {
		return collectionInfo{}, err
	}
	return info, nil
}

// ensureCollectionPolicies creates the encryption, network, and
// data-access policies for the collection. Policies that already
// exist (ConflictException) are left alone.
func (p *Pipeline) ensureCollectionPolicies(ctx context.Context, name, roleARN string) error {
	encryption, err := json.Marshal(map[string]any{
		"Rules": []map[string]any{{
			"ResourceType": "collection",
			"Resource":     []string{"collection/" + name},
		}},
		"AWSOwnedKey": true,
	})
	if err != nil {
		return fmt.Errorf("encoding encryption policy: %w", err)
	}

	network, err := json.Marshal([]map[string]any{{
		"Rules": []map[string]any{
			{
				"ResourceType": "collection",
				"Resource":     []string{"collection/" + name},
			},
			{
				"ResourceType": "dashboard",
				"Resource":     []string{"collection/" + name},
			},
		},
		"AllowFromPublic": true,
	}})
	if err != nil {
		return fmt.Errorf("encoding network policy: %w", err)
	}

	access, err := json.Marshal([]map[string]any{{
		"Rules": []map[string]any{
			{
				"ResourceType": "collection",
				"Resource":     []string{"collection/" + name},
				"Permission": []string{
					"aoss:CreateCollectionItems",
					"aoss:DeleteCollectionItems",
					"aoss:UpdateCollectionItems",
					"aoss:DescribeCollectionItems",
				},
			},
			{
				"ResourceType": "index",
				"Resource":     []string{"index/" + name + "/*"},
				"Permission": []string{
					"aoss:CreateIndex",
					"aoss:DeleteIndex",
					"aoss:UpdateIndex",
					"aoss:DescribeIndex",
					"aoss:ReadDocument",
					"aoss:WriteDocument",
				},
			},
		},
		"Principal": []string{p.id.CallerARN, roleARN},
	}})
	if err != nil {
		return fmt.Errorf("encoding access policy: %w", err)
	}

	_, err = p.clients.AOSS.CreateSecurityPolicy(ctx, &oss.CreateSecurityPolicyInput{
		Name:   aws.String(policyName("enc", p.cfg.Suffix)),
		Type:   osstypes.SecurityPolicyTypeEncryption,
		Policy: aws.String(string(encryption)),
	})
	if err != nil && !awsenv.IsConflict(err) {
		return fmt.Errorf("creating encryption policy: %w", err)
	}

	_, err = p.clients.AOSS.CreateSecurityPolicy(ctx, &oss.CreateSecurityPolicyInput{
		Name:   aws.String(policyName("net", p.cfg.Suffix)),
		Type:   osstypes.SecurityPolicyTypeNetwork,
		Policy: aws.String(string(network)),
	})
	if err != nil && !awsenv.IsConflict(err) {
		return fmt.Errorf("creating network policy: %w", err)
	}

	_, err = p.clients.AOSS.CreateAccessPolicy(ctx, &oss.CreateAccessPolicyInput{
		Name:   aws.String(policyName("acc", p.cfg.Suffix)),
		Type:   osstypes.AccessPolicyTypeData,
		Policy: aws.String(string(access)),
	})
	if err != nil && !awsenv.IsConflict(err) {
		return fmt.Errorf("creating access policy: %w", err)
	}

	return nil
}

// policyName builds a policy name within the 32-character aoss limit.
func policyName(kind, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", defaultNamePrefix, kind, suffix)
}
