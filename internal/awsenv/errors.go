// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package awsenv

import (
	"errors"

	"github.com/aws/smithy-go"
)

// ErrorCode extracts the service error code from an AWS SDK error, or
// "" when err carries none.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// notFoundCodes covers the not-found spellings of the services this
// tool calls: S3 returns NotFound/NoSuchBucket, Bedrock and OpenSearch
// Serverless return ResourceNotFoundException, IAM returns NoSuchEntity.
var notFoundCodes = map[string]bool{
	"NotFound":                  true,
	"NoSuchBucket":              true,
	"NoSuchKey":                 true,
	"ResourceNotFoundException": true,
	"NoSuchEntity":              true,
}

// IsNotFound reports whether err is a not-found response from any of
// the AWS services used here.
func IsNotFound(err error) bool {
	return notFoundCodes[ErrorCode(err)]
}

// IsConflict reports whether err signals that the resource already
// exists or is mid-transition, which provisioning resolves by
// re-reading the live resource.
func IsConflict(err error) bool {
	switch ErrorCode(err) {
	case "ConflictException", "EntityAlreadyExists",
		"BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return true
	}
	return false
}

// IsThrottle reports whether err is a throttling response worth
// retrying with backoff.
func IsThrottle(err error) bool {
	switch ErrorCode(err) {
	case "ThrottlingException", "TooManyRequestsException", "SlowDown":
		return true
	}
	return false
}
