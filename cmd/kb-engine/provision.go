// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-engine/internal/provision"
	"github.com/pdiddy/kb-engine/internal/registry"
	"github.com/pdiddy/kb-engine/pkg/types"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create or reconcile a Bedrock knowledge base stack",
	Long: `Provision finds or creates every resource a knowledge base needs: S3
data buckets, an IAM service role, an OpenSearch Serverless vector
collection with its security policies and knn index, the knowledge base,
and one data source per bucket. Existing resources are reused, so
re-running provision converges on the same stack.

The resulting stack is recorded in the local registry for the other
subcommands to find.`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().String("name", "", "knowledge base name (default: bedrock-kb-<suffix>)")
	provisionCmd.Flags().String("description", "", "knowledge base description")
	provisionCmd.Flags().String("suffix", "", "resource name suffix (default: derived from timestamp)")
	provisionCmd.Flags().StringSlice("bucket", nil, "S3 data bucket name, repeatable (default: <name>-data-1)")
	provisionCmd.Flags().String("vector-store-name", "", "OpenSearch Serverless collection name (default: <name>-vs)")
	provisionCmd.Flags().String("embedding-model", "", "embedding model ID (default amazon.titan-embed-text-v2:0)")
	provisionCmd.Flags().Int("embedding-dims", 0, "embedding vector dimensions (default 1024)")
	provisionCmd.Flags().String("chunking", "", "chunking strategy: fixed-size or none (default fixed-size)")
	provisionCmd.Flags().Int("chunk-max-tokens", 0, "chunk size in tokens for fixed-size chunking (default 512)")
	provisionCmd.Flags().Int("chunk-overlap", 0, "chunk overlap percentage for fixed-size chunking (default 20)")

	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sess, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}

	cfg := provisionConfigFromFlags(cmd)
	cfg.AWSConfig = awsConfigFromFlags(cmd)

	pipe := provision.New(
		provision.Clients{
			S3:    sess.S3(),
			IAM:   sess.IAM(),
			AOSS:  sess.AOSS(),
			Agent: sess.Agent(),
			Index: &provision.OpenSearchIndexCreator{Cfg: sess.Cfg},
		},
		provision.Identity{
			AccountID: sess.AccountID,
			CallerARN: sess.CallerARN,
			Region:    sess.Region,
		},
		cfg,
		os.Stdout,
	)

	// Run returns the partial record on failure; save it either way so
	// teardown can find whatever was created.
	rec, runErr := pipe.Run(ctx)
	if rec == nil {
		return runErr
	}

	reg, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.Save(ctx, rec); err != nil {
		return fmt.Errorf("recording stack: %w", err)
	}
	manifest, err := registry.WriteManifest(workspaceDir(cmd), rec)
	if err != nil {
		return err
	}

	if runErr != nil {
		fmt.Fprintf(os.Stdout, "\nProvisioning failed; partial stack %s recorded for teardown.\n", rec.KnowledgeBaseName)
		return runErr
	}

	fmt.Fprintf(os.Stdout, "\nKnowledge base %s (%s) is ready.\n", rec.KnowledgeBaseName, rec.KnowledgeBaseID)
	fmt.Fprintf(os.Stdout, "Stack manifest written to %s\n", manifest)
	return nil
}

func provisionConfigFromFlags(cmd *cobra.Command) types.ProvisionConfig {
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	suffix, _ := cmd.Flags().GetString("suffix")
	buckets, _ := cmd.Flags().GetStringSlice("bucket")
	vectorStore, _ := cmd.Flags().GetString("vector-store-name")
	embeddingModel, _ := cmd.Flags().GetString("embedding-model")
	embeddingDims, _ := cmd.Flags().GetInt("embedding-dims")
	chunking, _ := cmd.Flags().GetString("chunking")
	chunkTokens, _ := cmd.Flags().GetInt("chunk-max-tokens")
	chunkOverlap, _ := cmd.Flags().GetInt("chunk-overlap")

	return types.ProvisionConfig{
		Name:                name,
		Description:         description,
		Suffix:              suffix,
		Buckets:             buckets,
		VectorStoreName:     vectorStore,
		EmbeddingModelID:    firstNonEmpty(embeddingModel, loadedSecrets["embedding-model"]),
		EmbeddingDimensions: embeddingDims,
		Chunking:            types.ChunkingStrategy(chunking),
		ChunkMaxTokens:      chunkTokens,
		ChunkOverlapPercent: chunkOverlap,
	}
}
