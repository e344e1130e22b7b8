// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	oss "github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-engine/internal/awsenv"
	"github.com/pdiddy/kb-engine/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provisioned knowledge base stacks",
	Long: `Status lists the stacks recorded in the local registry. With --remote
the live status of each stack's knowledge base, vector collection, and
data sources is fetched from AWS; resources deleted outside of
kb-engine show as MISSING.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("remote", false, "fetch live resource status from AWS")
	statusCmd.Flags().Bool("json", false, "output stacks as JSON")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	reg, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer reg.Close()

	stacks, err := reg.List(ctx)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return printJSON(stacks)
	}

	if len(stacks) == 0 {
		fmt.Println("No provisioned stacks. Run \"kb-engine provision\" to create one.")
		return nil
	}

	remote, _ := cmd.Flags().GetBool("remote")
	var sess *awsenv.Session
	if remote {
		sess, err = newSession(ctx, cmd)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stdout, "%-28s  %-12s  %-12s  %-10s  %-28s  %s\n",
		"Name", "KB ID", "Region", "Status", "Bucket", "Created")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))

	for _, rec := range stacks {
		status := "recorded"
		var details []resourceStatus
		if remote {
			statuses := stackStatuses(ctx, sess.Agent(), sess.AOSS(), rec)
			status = statuses[0].Status
			details = statuses[1:]
		}
		fmt.Fprintf(os.Stdout, "%-28s  %-12s  %-12s  %-10s  %-28s  %s\n",
			rec.KnowledgeBaseName, rec.KnowledgeBaseID, rec.Region, status,
			rec.PrimaryBucket(), rec.CreatedAt.Format("2006-01-02 15:04"))
		for _, d := range details {
			fmt.Fprintf(os.Stdout, "    %-40s  %s\n", d.Name, d.Status)
		}
	}

	fmt.Fprintf(os.Stdout, "\n%d stack(s)\n", len(stacks))
	return nil
}

// agentStatusAPI is the subset of the Bedrock Agent control plane the
// remote status view reads.
type agentStatusAPI interface {
	GetKnowledgeBase(ctx context.Context, params *bedrockagent.GetKnowledgeBaseInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetKnowledgeBaseOutput, error)
	GetDataSource(ctx context.Context, params *bedrockagent.GetDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetDataSourceOutput, error)
}

// aossStatusAPI is the subset of the OpenSearch Serverless client the
// remote status view reads.
type aossStatusAPI interface {
	BatchGetCollection(ctx context.Context, params *oss.BatchGetCollectionInput, optFns ...func(*oss.Options)) (*oss.BatchGetCollectionOutput, error)
}

// resourceStatus pairs one stack resource with its live status.
type resourceStatus struct {
	Name   string
	Status string
}

// stackStatuses fetches the live status of the knowledge base, the
// vector collection, and every data source on the stack. The knowledge
// base is always first. A not-found answer maps to MISSING rather than
// an error so a half-deleted stack still renders.
func stackStatuses(ctx context.Context, agent agentStatusAPI, aoss aossStatusAPI, rec *types.StackRecord) []resourceStatus {
	statuses := []resourceStatus{{
		Name:   "knowledge base " + rec.KnowledgeBaseID,
		Status: knowledgeBaseStatus(ctx, agent, rec.KnowledgeBaseID),
	}}

	statuses = append(statuses, resourceStatus{
		Name:   "collection " + rec.CollectionName,
		Status: collectionStatus(ctx, aoss, rec.CollectionName),
	})

	for _, ds := range rec.DataSources {
		statuses = append(statuses, resourceStatus{
			Name:   "data source " + ds.Name,
			Status: dataSourceStatus(ctx, agent, rec.KnowledgeBaseID, ds.ID),
		})
	}
	return statuses
}

func knowledgeBaseStatus(ctx context.Context, agent agentStatusAPI, kbID string) string {
	out, err := agent.GetKnowledgeBase(ctx, &bedrockagent.GetKnowledgeBaseInput{
		KnowledgeBaseId: aws.String(kbID),
	})
	if err != nil {
		return statusFromError(err)
	}
	return string(out.KnowledgeBase.Status)
}

func dataSourceStatus(ctx context.Context, agent agentStatusAPI, kbID, dsID string) string {
	out, err := agent.GetDataSource(ctx, &bedrockagent.GetDataSourceInput{
		KnowledgeBaseId: aws.String(kbID),
		DataSourceId:    aws.String(dsID),
	})
	if err != nil {
		return statusFromError(err)
	}
	return string(out.DataSource.Status)
}

func collectionStatus(ctx context.Context, aossClient aossStatusAPI, name string) string {
	out, err := aossClient.BatchGetCollection(ctx, &oss.BatchGetCollectionInput{
		Names: []string{name},
	})
	if err != nil {
		return "ERROR"
	}
	if len(out.CollectionDetails) == 0 {
		return "MISSING"
	}
	return string(out.CollectionDetails[0].Status)
}

func statusFromError(err error) string {
	if awsenv.IsNotFound(err) {
		return "MISSING"
	}
	return "ERROR"
}
