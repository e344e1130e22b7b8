// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// exitWord ends the interactive loop.
const exitWord = "exit"

// RunInteractive reads queries from in until EOF or the exit word,
// answering each through the engine. Per-query errors are printed and
// the loop continues, so a malformed question does not end the
// session.
func RunInteractive(ctx context.Context, e *Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "\nEnter your query (or 'exit' to quit): ")

		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.EqualFold(text, exitWord) {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		answer, err := e.Ask(ctx, text)
		if err != nil {
			fmt.Fprintf(out, "Error processing query: %v\n", err)
			fmt.Fprintln(out, "Try reformulating your question")
			continue
		}

		fmt.Fprintf(out, "\n%s\n", answer.Text)
		if len(answer.Citations) > 0 {
			fmt.Fprintf(out, "\nSources:\n")
			for i, c := range answer.Citations {
				fmt.Fprintf(out, "  [%d] %s\n", i+1, c.Location)
			}
		}
	}
}

// PrintChunks writes retrieved chunks in the numbered block format.
func PrintChunks(out io.Writer, chunks []Chunk) {
	if len(chunks) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}

	for i, c := range chunks {
		fmt.Fprintf(out, "Chunk %d: %s\n", i+1, c.Content)
		if c.Location != "" {
			fmt.Fprintf(out, "Chunk %d Location: %s\n", i+1, c.Location)
		}
		fmt.Fprintf(out, "Chunk %d Score: %g\n", i+1, c.Score)
		if len(c.Metadata) > 0 {
			fmt.Fprintf(out, "Chunk %d Metadata: %v\n", i+1, c.Metadata)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%d results\n", len(chunks))
}
