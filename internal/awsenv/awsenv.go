// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package awsenv builds the AWS session and service clients shared by
// all stages. Credentials come from the default chain, which includes
// SSO profiles selected through AWS_PROFILE or --profile.
// See docs/ARCHITECTURE § AWS Session.
package awsenv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pdiddy/kb-engine/pkg/types"
)

// Session wraps a resolved AWS configuration plus the caller identity.
type Session struct {
	Cfg       aws.Config
	Region    string
	AccountID string
	CallerARN string
}

// stsAPI is the subset of the STS client used during session setup.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Load resolves AWS configuration for the given settings and verifies
// the credentials by fetching the caller identity. An identity failure
// usually means the SSO session has expired; the error says so.
func Load(ctx context.Context, cfg types.AWSConfig) (*Session, error) {
	var optFns []func(*config.LoadOptions) error
	if cfg.Profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	if awsCfg.Region == "" {
		return nil, fmt.Errorf("no AWS region configured: set AWS_REGION, --region, or a region in the profile")
	}

	s := &Session{Cfg: awsCfg, Region: awsCfg.Region}
	if err := s.resolveIdentity(ctx, sts.NewFromConfig(awsCfg)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) resolveIdentity(ctx context.Context, client stsAPI) error {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("resolving caller identity (is your SSO session current? try `aws sso login`): %w", err)
	}
	s.AccountID = aws.ToString(out.Account)
	s.CallerARN = aws.ToString(out.Arn)
	return nil
}

// S3 returns an S3 client bound to the session.
func (s *Session) S3() *s3.Client {
	return s3.NewFromConfig(s.Cfg)
}

// IAM returns an IAM client bound to the session.
func (s *Session) IAM() *iam.Client {
	return iam.NewFromConfig(s.Cfg)
}

// Agent returns a Bedrock Agent (control plane) client.
func (s *Session) Agent() *bedrockagent.Client {
	return bedrockagent.NewFromConfig(s.Cfg)
}

// AgentRuntime returns a Bedrock Agent Runtime (data plane) client.
func (s *Session) AgentRuntime() *bedrockagentruntime.Client {
	return bedrockagentruntime.NewFromConfig(s.Cfg)
}

// AOSS returns an OpenSearch Serverless client.
func (s *Session) AOSS() *opensearchserverless.Client {
	return opensearchserverless.NewFromConfig(s.Cfg)
}

// FoundationModelARN builds the regional ARN for a foundation model ID
// (e.g. "amazon.nova-micro-v1:0").
func (s *Session) FoundationModelARN(modelID string) string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", s.Region, modelID)
}
