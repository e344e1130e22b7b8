// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-engine/internal/ingest"
	"github.com/pdiddy/kb-engine/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Sync uploaded documents into the knowledge base",
	Long: `Ingest starts an ingestion job for every data source on the stack and
waits for each to finish, printing document counts as jobs complete.
A failed data source does not stop the remaining ones.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("kb-name", "", "knowledge base name (default: most recent stack)")
	ingestCmd.Flags().Duration("poll-interval", 0, "delay between job status checks (default 10s)")
	ingestCmd.Flags().Duration("timeout", 0, "per-job wait limit (default 30m)")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	reg, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	rec, err := resolveStack(ctx, cmd, reg)
	reg.Close()
	if err != nil {
		return err
	}

	sess, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}

	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	cfg := types.IngestConfig{
		PollInterval: pollInterval,
		Timeout:      timeout,
	}

	summary, err := ingest.Run(ctx, sess.Agent(), rec.KnowledgeBaseID, rec.DataSources, cfg, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d data source(s) failed ingestion", summary.Failed)
	}
	return nil
}
