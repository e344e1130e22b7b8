// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package awsenv

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestResolveIdentity(t *testing.T) {
	s := &Session{}
	client := &fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/dev"),
	}}

	require.NoError(t, s.resolveIdentity(context.Background(), client))
	assert.Equal(t, "123456789012", s.AccountID)
	assert.Equal(t, "arn:aws:iam::123456789012:user/dev", s.CallerARN)
}

func TestResolveIdentityErrorMentionsSSOLogin(t *testing.T) {
	s := &Session{}
	client := &fakeSTS{err: fmt.Errorf("ExpiredToken: token expired")}

	err := s.resolveIdentity(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws sso login")
}

func TestFoundationModelARN(t *testing.T) {
	s := &Session{Region: "us-west-2"}
	assert.Equal(t,
		"arn:aws:bedrock:us-west-2::foundation-model/amazon.nova-micro-v1:0",
		s.FoundationModelARN("amazon.nova-micro-v1:0"))
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
		conflict bool
		throttle bool
	}{
		{name: "s3 bucket missing", err: apiError("NoSuchBucket"), notFound: true},
		{name: "bedrock resource missing", err: apiError("ResourceNotFoundException"), notFound: true},
		{name: "iam entity missing", err: apiError("NoSuchEntity"), notFound: true},
		{name: "aoss conflict", err: apiError("ConflictException"), conflict: true},
		{name: "bucket already owned", err: apiError("BucketAlreadyOwnedByYou"), conflict: true},
		{name: "throttled", err: apiError("ThrottlingException"), throttle: true},
		{name: "s3 slow down", err: apiError("SlowDown"), throttle: true},
		{name: "unrelated api error", err: apiError("AccessDeniedException")},
		{name: "plain error", err: fmt.Errorf("dial tcp: timeout")},
		{name: "wrapped api error", err: fmt.Errorf("head bucket: %w", apiError("NotFound")), notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err), "IsNotFound")
			assert.Equal(t, tt.conflict, IsConflict(tt.err), "IsConflict")
			assert.Equal(t, tt.throttle, IsThrottle(tt.err), "IsThrottle")
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "ValidationException", ErrorCode(apiError("ValidationException")))
	assert.Equal(t, "", ErrorCode(fmt.Errorf("not an api error")))
	assert.Equal(t, "", ErrorCode(nil))
}
