// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-engine/internal/corpus"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <dir>",
	Short: "Upload a document directory to the knowledge base bucket",
	Long: `Upload walks a local directory and uploads every file to the stack's
data bucket, preserving relative paths as object keys. Hidden files and
directories are skipped. Run "kb-engine ingest" afterwards to sync the
uploaded documents into the knowledge base.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().String("kb-name", "", "knowledge base name (default: most recent stack)")
	uploadCmd.Flags().String("bucket", "", "target bucket (default: the stack's primary data bucket)")

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	bucket, _ := cmd.Flags().GetString("bucket")
	if bucket == "" {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		rec, err := resolveStack(ctx, cmd, reg)
		reg.Close()
		if err != nil {
			return err
		}
		bucket = rec.PrimaryBucket()
		if bucket == "" {
			return fmt.Errorf("stack %s has no data buckets", rec.KnowledgeBaseName)
		}
	}

	sess, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}

	uploader := manager.NewUploader(sess.S3())
	summary, err := corpus.UploadDir(ctx, uploader, bucket, args[0], os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d file(s) failed to upload", summary.Failed)
	}
	return nil
}
