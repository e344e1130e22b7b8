// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pdiddy/kb-engine/internal/awsenv"
)

// S3API is the subset of the S3 client used for bucket provisioning.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// ensureBucket creates the data bucket when it is missing. us-east-1
// rejects an explicit LocationConstraint, every other region requires
// one.
func (p *Pipeline) ensureBucket(ctx context.Context, bucket string) error {
	_, err := p.clients.S3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		fmt.Fprintf(p.w, "exists  bucket %s\n", bucket)
		return nil
	}
	if !awsenv.IsNotFound(err) {
		return fmt.Errorf("checking bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if p.id.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.id.Region),
		}
	}

	if _, err := p.clients.S3.CreateBucket(ctx, input); err != nil {
		if awsenv.IsConflict(err) {
			fmt.Fprintf(p.w, "exists  bucket %s\n", bucket)
			return nil
		}
		return fmt.Errorf("creating bucket: %w", err)
	}

	fmt.Fprintf(p.w, "created bucket %s\n", bucket)
	return nil
}
