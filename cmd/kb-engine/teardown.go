// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-engine/internal/registry"
	"github.com/pdiddy/kb-engine/internal/teardown"
	"github.com/pdiddy/kb-engine/pkg/types"
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete a knowledge base stack and its resources",
	Long: `Teardown deletes every resource the stack owns: data sources, the
knowledge base, the OpenSearch Serverless collection and its policies,
the IAM role, and the data buckets with their contents. Resources
already gone are skipped. The stack is removed from the local registry
once deletion finishes.

Use --keep-bucket to leave the data buckets and their documents intact.
If the local registry is lost, --manifest tears down from a stack
manifest file instead.`,
	RunE: runTeardown,
}

func init() {
	teardownCmd.Flags().String("kb-name", "", "knowledge base name (default: most recent stack)")
	teardownCmd.Flags().Bool("keep-bucket", false, "leave data buckets and their contents in place")
	teardownCmd.Flags().String("manifest", "", "tear down the stack described by a manifest file")

	rootCmd.AddCommand(teardownCmd)
}

func runTeardown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	reg, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer reg.Close()

	var rec *types.StackRecord
	if manifest, _ := cmd.Flags().GetString("manifest"); manifest != "" {
		rec, err = registry.ReadManifest(manifest)
	} else {
		rec, err = resolveStack(ctx, cmd, reg)
	}
	if err != nil {
		return err
	}

	sess, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}

	keepBuckets, _ := cmd.Flags().GetBool("keep-bucket")

	clients := teardown.Clients{
		S3:    sess.S3(),
		Agent: sess.Agent(),
		AOSS:  sess.AOSS(),
		IAM:   sess.IAM(),
	}
	if err := teardown.Run(ctx, clients, rec, teardown.Options{KeepBuckets: keepBuckets}, os.Stdout); err != nil {
		return err
	}

	if err := reg.Delete(ctx, rec.KnowledgeBaseName); err != nil {
		return fmt.Errorf("removing stack from registry: %w", err)
	}

	fmt.Fprintf(os.Stdout, "\nStack %s torn down.\n", rec.KnowledgeBaseName)
	return nil
}
