// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package teardown deletes a provisioned stack in reverse dependency
// order: data sources, the knowledge base, the vector collection and
// its policies, the service role, and optionally the data buckets.
// Already-deleted resources are treated as success so a partial
// teardown can be rerun.
// See docs/ARCHITECTURE § Teardown.
package teardown

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	oss "github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	osstypes "github.com/aws/aws-sdk-go-v2/service/opensearchserverless/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pdiddy/kb-engine/internal/awsenv"
	"github.com/pdiddy/kb-engine/pkg/types"
)

// S3API is the subset of the S3 client used for bucket teardown.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// AgentAPI is the subset of the Bedrock Agent control plane used for
// teardown.
type AgentAPI interface {
	DeleteDataSource(ctx context.Context, params *bedrockagent.DeleteDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteDataSourceOutput, error)
	DeleteKnowledgeBase(ctx context.Context, params *bedrockagent.DeleteKnowledgeBaseInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteKnowledgeBaseOutput, error)
}

// AOSSAPI is the subset of the OpenSearch Serverless client used for
// teardown.
type AOSSAPI interface {
	DeleteCollection(ctx context.Context, params *oss.DeleteCollectionInput, optFns ...func(*oss.Options)) (*oss.DeleteCollectionOutput, error)
	DeleteSecurityPolicy(ctx context.Context, params *oss.DeleteSecurityPolicyInput, optFns ...func(*oss.Options)) (*oss.DeleteSecurityPolicyOutput, error)
	DeleteAccessPolicy(ctx context.Context, params *oss.DeleteAccessPolicyInput, optFns ...func(*oss.Options)) (*oss.DeleteAccessPolicyOutput, error)
}

// IAMAPI is the subset of the IAM client used for teardown.
type IAMAPI interface {
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
	DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

// Clients bundles the AWS facades teardown drives.
type Clients struct {
	S3    S3API
	Agent AgentAPI
	AOSS  AOSSAPI
	IAM   IAMAPI
}

// Options controls what teardown removes.
type Options struct {
	// KeepBuckets leaves the data buckets and their contents in place.
	KeepBuckets bool
}

// Run deletes the stack described by rec. Each step reports on w;
// failures are collected so the remaining steps still run, and the
// first failure is returned at the end.
func Run(ctx context.Context, c Clients, rec *types.StackRecord, opts Options, w io.Writer) error {
	var firstErr error
	fail := func(what string, err error) {
		fmt.Fprintf(w, "failed  %s: %v\n", what, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("deleting %s: %w", what, err)
		}
	}
	done := func(what string) {
		fmt.Fprintf(w, "deleted %s\n", what)
	}

	for _, ds := range rec.DataSources {
		_, err := c.Agent.DeleteDataSource(ctx, &bedrockagent.DeleteDataSourceInput{
			KnowledgeBaseId: aws.String(rec.KnowledgeBaseID),
			DataSourceId:    aws.String(ds.ID),
		})
		if err != nil && !awsenv.IsNotFound(err) {
			fail("data source "+ds.Name, err)
		} else {
			done("data source " + ds.Name)
		}
	}

	if rec.KnowledgeBaseID != "" {
		_, err := c.Agent.DeleteKnowledgeBase(ctx, &bedrockagent.DeleteKnowledgeBaseInput{
			KnowledgeBaseId: aws.String(rec.KnowledgeBaseID),
		})
		if err != nil && !awsenv.IsNotFound(err) {
			fail("knowledge base "+rec.KnowledgeBaseName, err)
		} else {
			done("knowledge base " + rec.KnowledgeBaseName)
		}
	}

	if rec.CollectionID != "" {
		_, err := c.AOSS.DeleteCollection(ctx, &oss.DeleteCollectionInput{
			Id: aws.String(rec.CollectionID),
		})
		if err != nil && !awsenv.IsNotFound(err) {
			fail("collection "+rec.CollectionName, err)
		} else {
			done("collection " + rec.CollectionName)
		}
	}

	deletePolicies(ctx, c.AOSS, rec.Suffix, fail, done)

	if rec.RoleName != "" {
		if err := deleteRole(ctx, c.IAM, rec.RoleName); err != nil && !awsenv.IsNotFound(err) {
			fail("role "+rec.RoleName, err)
		} else {
			done("role " + rec.RoleName)
		}
	}

	if !opts.KeepBuckets {
		for _, bucket := range rec.Buckets {
			if err := emptyAndDeleteBucket(ctx, c.S3, bucket); err != nil && !awsenv.IsNotFound(err) {
				fail("bucket "+bucket, err)
			} else {
				done("bucket " + bucket)
			}
		}
	}

	return firstErr
}

func deletePolicies(ctx context.Context, api AOSSAPI, suffix string, fail func(string, error), done func(string)) {
	security := []struct {
		kind string
		typ  osstypes.SecurityPolicyType
	}{
		{"enc", osstypes.SecurityPolicyTypeEncryption},
		{"net", osstypes.SecurityPolicyTypeNetwork},
	}
	for _, p := range security {
		name := fmt.Sprintf("bedrock-kb-%s-%s", p.kind, suffix)
		_, err := api.DeleteSecurityPolicy(ctx, &oss.DeleteSecurityPolicyInput{
			Name: aws.String(name),
			Type: p.typ,
		})
		if err != nil && !awsenv.IsNotFound(err) {
			fail("security policy "+name, err)
		} else {
			done("security policy " + name)
		}
	}

	name := fmt.Sprintf("bedrock-kb-acc-%s", suffix)
	_, err := api.DeleteAccessPolicy(ctx, &oss.DeleteAccessPolicyInput{
		Name: aws.String(name),
		Type: osstypes.AccessPolicyTypeData,
	})
	if err != nil && !awsenv.IsNotFound(err) {
		fail("access policy "+name, err)
	} else {
		done("access policy " + name)
	}
}

// deleteRole removes the role's inline policies first; IAM refuses to
// delete a role that still has them.
func deleteRole(ctx context.Context, api IAMAPI, roleName string) error {
	policies, err := api.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return err
	}
	for _, name := range policies.PolicyNames {
		_, err := api.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(roleName),
			PolicyName: aws.String(name),
		})
		if err != nil && !awsenv.IsNotFound(err) {
			return err
		}
	}
	_, err = api.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(roleName)})
	return err
}

// emptyAndDeleteBucket pages through the bucket, batch-deleting
// objects, then removes the bucket itself.
func emptyAndDeleteBucket(ctx context.Context, api S3API, bucket string) error {
	var continuation *string
	for {
		page, err := api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: continuation,
		})
		if err != nil {
			return err
		}

		if len(page.Contents) > 0 {
			objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
			for _, obj := range page.Contents {
				objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
			}
			_, err = api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &s3types.Delete{Objects: objects},
			})
			if err != nil {
				return err
			}
		}

		if !aws.ToBool(page.IsTruncated) {
			break
		}
		continuation = page.NextContinuationToken
	}

	_, err := api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	return err
}
