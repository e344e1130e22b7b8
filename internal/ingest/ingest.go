// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest starts Bedrock ingestion jobs and waits for them to
// finish. One job runs per data source; each syncs the backing bucket
// into the vector index.
// See docs/ARCHITECTURE § Ingestion.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"

	"github.com/pdiddy/kb-engine/internal/waiter"
	"github.com/pdiddy/kb-engine/pkg/types"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultTimeout      = 30 * time.Minute
)

// AgentAPI is the subset of the Bedrock Agent control plane used for
// ingestion jobs.
type AgentAPI interface {
	StartIngestionJob(ctx context.Context, params *bedrockagent.StartIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error)
	GetIngestionJob(ctx context.Context, params *bedrockagent.GetIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error)
}

// JobResult holds the outcome of one ingestion job.
type JobResult struct {
	DataSourceID string
	JobID        string
	Scanned      int64
	Indexed      int64
	Failed       int64
}

// Summary holds counts from an ingestion run.
type Summary struct {
	Completed int
	Failed    int
	Jobs      []JobResult
}

// HasFailures reports whether any jobs failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Run starts one ingestion job per data source and polls each until it
// completes or fails. A failed job is reported on w and counted; the
// remaining sources still run.
func Run(ctx context.Context, api AgentAPI, kbID string, sources []types.DataSourceRecord, cfg types.IngestConfig, w io.Writer) (Summary, error) {
	if len(sources) == 0 {
		return Summary{}, fmt.Errorf("no data sources to ingest")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var summary Summary
	for _, src := range sources {
		fmt.Fprintf(w, "starting ingestion for %s\n", src.Name)

		result, err := runJob(ctx, api, kbID, src, interval, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			fmt.Fprintf(w, "failed   %s: %v\n", src.Name, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "complete %s: scanned %d, indexed %d, failed %d\n",
			src.Name, result.Scanned, result.Indexed, result.Failed)
		summary.Completed++
		summary.Jobs = append(summary.Jobs, result)
	}

	fmt.Fprintf(w, "\ncompleted: %d, failed: %d\n", summary.Completed, summary.Failed)
	return summary, nil
}

func runJob(ctx context.Context, api AgentAPI, kbID string, src types.DataSourceRecord, interval, timeout time.Duration) (JobResult, error) {
	started, err := api.StartIngestionJob(ctx, &bedrockagent.StartIngestionJobInput{
		KnowledgeBaseId: aws.String(kbID),
		DataSourceId:    aws.String(src.ID),
	})
	if err != nil {
		return JobResult{}, fmt.Errorf("starting ingestion job: %w", err)
	}
	jobID := aws.ToString(started.IngestionJob.IngestionJobId)

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxChecks := int(timeout/interval) + 1
	var job *agenttypes.IngestionJob

	err = waiter.Poll(jobCtx, "ingestion job "+jobID, interval, maxChecks, func(ctx context.Context) (bool, error) {
		out, err := api.GetIngestionJob(ctx, &bedrockagent.GetIngestionJobInput{
			KnowledgeBaseId: aws.String(kbID),
			DataSourceId:    aws.String(src.ID),
			IngestionJobId:  aws.String(jobID),
		})
		if err != nil {
			return false, fmt.Errorf("polling ingestion job: %w", err)
		}

		job = out.IngestionJob
		switch job.Status {
		case agenttypes.IngestionJobStatusComplete:
			return true, nil
		case agenttypes.IngestionJobStatusFailed:
			return false, fmt.Errorf("ingestion job %s failed: %s", jobID, strings.Join(job.FailureReasons, "; "))
		default:
			return false, nil
		}
	})
	if err != nil {
		return JobResult{}, err
	}

	result := JobResult{DataSourceID: src.ID, JobID: jobID}
	if stats := job.Statistics; stats != nil {
		result.Scanned = stats.NumberOfDocumentsScanned
		result.Indexed = stats.NumberOfNewDocumentsIndexed +
			stats.NumberOfModifiedDocumentsIndexed
		result.Failed = stats.NumberOfDocumentsFailed
	}
	return result, nil
}
