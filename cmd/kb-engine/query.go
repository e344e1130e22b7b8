// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-engine/internal/query"
)

const defaultGenerationModel = "amazon.nova-micro-v1:0"

var queryCmd = &cobra.Command{
	Use:   "query [question...]",
	Short: "Ask the knowledge base a question",
	Long: `Query sends a question through Bedrock retrieve-and-generate: relevant
chunks are retrieved from the knowledge base and a foundation model
synthesizes an answer with source citations. With no question on the
command line an interactive session starts; type "exit" to leave.

Use --retrieve-only to print the raw retrieved chunks without
generation.`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("kb-name", "", "knowledge base name (default: most recent stack)")
	queryCmd.Flags().String("model", "", "generation model ID (default amazon.nova-micro-v1:0)")
	queryCmd.Flags().Int("max-results", 0, "retrieved chunks per query (default 5)")
	queryCmd.Flags().Bool("retrieve-only", false, "print retrieved chunks without generating an answer")
	queryCmd.Flags().Bool("json", false, "output the answer as JSON")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	retrieveOnly, _ := cmd.Flags().GetBool("retrieve-only")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if err := validateQueryFlags(len(args), retrieveOnly, jsonOutput); err != nil {
		return err
	}

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

	modelFlag, _ := cmd.Flags().GetString("model")
	model := firstNonEmpty(modelFlag, loadedSecrets["generation-model"], defaultGenerationModel)
	maxResults, _ := cmd.Flags().GetInt("max-results")

	engine := query.NewEngine(sess.AgentRuntime(), rec.KnowledgeBaseID, sess.FoundationModelARN(model), maxResults)

	// No question on the command line: interactive session.
	if len(args) == 0 {
		return query.RunInteractive(ctx, engine, os.Stdin, os.Stdout)
	}

	question := strings.Join(args, " ")

	if retrieveOnly {
		chunks, err := engine.Retrieve(ctx, question)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(chunks)
		}
		query.PrintChunks(os.Stdout, chunks)
		return nil
	}

	answer, err := engine.Ask(ctx, question)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(answer)
	}

	fmt.Println(answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Println("\nSources:")
		for i, c := range answer.Citations {
			fmt.Printf("  %d. %s\n", i+1, c.Location)
		}
	}
	return nil
}

// validateQueryFlags rejects output flags that only apply to a
// one-shot question; the interactive session ignores them otherwise.
func validateQueryFlags(argc int, retrieveOnly, jsonOutput bool) error {
	if argc > 0 {
		return nil
	}
	if retrieveOnly || jsonOutput {
		return fmt.Errorf("--retrieve-only and --json need a question on the command line")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
