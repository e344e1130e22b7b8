// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus uploads a local document tree to the knowledge base
// data bucket. Relative paths become object keys, so the bucket
// mirrors the directory layout.
// See docs/ARCHITECTURE § Corpus Upload.
package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader is the subset of the S3 upload manager used here.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Summary holds counts from an upload run.
type Summary struct {
	Uploaded int
	Failed   int
}

// Total returns the number of files processed.
func (s Summary) Total() int {
	return s.Uploaded + s.Failed
}

// HasFailures reports whether any files failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// UploadDir walks dir and uploads every regular file to bucket with
// its slash-separated relative path as the key. Hidden files and
// directories are skipped. Per-file failures are reported on w and
// counted, not fatal.
func UploadDir(ctx context.Context, up Uploader, bucket, dir string, w io.Writer) (Summary, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("reading corpus directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("corpus path %s is not a directory", dir)
	}

	var summary Summary

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		key := filepath.ToSlash(rel)

		if err := uploadFile(ctx, up, bucket, key, path); err != nil {
			fmt.Fprintf(w, "failed   %s: %v\n", key, err)
			summary.Failed++
			return nil
		}

		fmt.Fprintf(w, "uploaded %s\n", key)
		summary.Uploaded++
		return nil
	})
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "\nuploaded: %d, failed: %d\n", summary.Uploaded, summary.Failed)
	return summary, nil
}

func uploadFile(ctx context.Context, up Uploader, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	_, err = up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	return nil
}
