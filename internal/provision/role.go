// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/pdiddy/kb-engine/internal/awsenv"
)

// IAMAPI is the subset of the IAM client used for the service role.
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

// roleInfo carries the resolved service role identity.
type roleInfo struct {
	Name string
	ARN  string
}

// policyDocument is the generic IAM policy JSON shape.
type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string         `json:"Effect"`
	Principal map[string]any `json:"Principal,omitempty"`
	Action    []string       `json:"Action"`
	Resource  []string       `json:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// ensureRole finds or creates the Bedrock service role and attaches
// the inline policies the knowledge base needs: embedding model
// invocation, data bucket reads, and collection API access.
func (p *Pipeline) ensureRole(ctx context.Context) (roleInfo, error) {
	roleName := fmt.Sprintf("%s-role-%s", defaultNamePrefix, p.cfg.Suffix)

	out, err := p.clients.IAM.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err == nil {
		fmt.Fprintf(p.w, "exists  role %s\n", roleName)
		return roleInfo{Name: roleName, ARN: aws.ToString(out.Role.Arn)}, nil
	}
	if !awsenv.IsNotFound(err) {
		return roleInfo{}, fmt.Errorf("checking role: %w", err)
	}

	trust, err := json.Marshal(policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string]any{"Service": "bedrock.amazonaws.com"},
			Action:    []string{"sts:AssumeRole"},
			Condition: map[string]any{
				"StringEquals": map[string]string{"aws:SourceAccount": p.id.AccountID},
				"ArnLike": map[string]string{
					"aws:SourceArn": fmt.Sprintf("arn:aws:bedrock:%s:%s:knowledge-base/*", p.id.Region, p.id.AccountID),
				},
			},
		}},
	})
	if err != nil {
		return roleInfo{}, fmt.Errorf("encoding trust policy: %w", err)
	}

	created, err := p.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(string(trust)),
		Description:              aws.String("Service role for the Bedrock knowledge base"),
	})
	if err != nil {
		return roleInfo{}, fmt.Errorf("creating role: %w", err)
	}

	if err := p.attachRolePolicies(ctx, roleName); err != nil {
		return roleInfo{}, err
	}

	fmt.Fprintf(p.w, "created role %s\n", roleName)
	return roleInfo{Name: roleName, ARN: aws.ToString(created.Role.Arn)}, nil
}

// rolePolicies builds the inline policies for the service role, keyed
// by policy name.
func (p *Pipeline) rolePolicies() map[string]policyDocument {
	bucketARNs := make([]string, 0, len(p.cfg.Buckets)*2)
	for _, b := range p.cfg.Buckets {
		bucketARNs = append(bucketARNs,
			fmt.Sprintf("arn:aws:s3:::%s", b),
			fmt.Sprintf("arn:aws:s3:::%s/*", b),
		)
	}

	return map[string]policyDocument{
		"foundation-model-access": {
			Version: "2012-10-17",
			Statement: []policyStatement{{
				Effect:   "Allow",
				Action:   []string{"bedrock:InvokeModel"},
				Resource: []string{p.embeddingModelARN()},
			}},
		},
		"s3-data-access": {
			Version: "2012-10-17",
			Statement: []policyStatement{{
				Effect:   "Allow",
				Action:   []string{"s3:GetObject", "s3:ListBucket"},
				Resource: bucketARNs,
				Condition: map[string]any{
					"StringEquals": map[string]string{"aws:ResourceAccount": p.id.AccountID},
				},
			}},
		},
		"aoss-access": {
			Version: "2012-10-17",
			Statement: []policyStatement{{
				Effect: "Allow",
				Action: []string{"aoss:APIAccessAll"},
				Resource: []string{
					fmt.Sprintf("arn:aws:aoss:%s:%s:collection/*", p.id.Region, p.id.AccountID),
				},
			}},
		},
	}
}

func (p *Pipeline) attachRolePolicies(ctx context.Context, roleName string) error {
	for name, doc := range p.rolePolicies() {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding policy %s: %w", name, err)
		}
		_, err = p.clients.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyName:     aws.String(name),
			PolicyDocument: aws.String(string(body)),
		})
		if err != nil {
			return fmt.Errorf("attaching policy %s: %w", name, err)
		}
	}
	return nil
}
