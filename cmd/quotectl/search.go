package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quotelens/internal/app"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Keyword search over every stored quote",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var searchExplain int

var askCmd = &cobra.Command{
	Use:   "ask [conversation-id] [question]",
	Short: "Ask a question about the documents of a conversation",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

func init() {
	searchCmd.Flags().IntVar(&searchExplain, "explain", 0, "ask the model why the top N results match")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Services.Search.SearchQuotes(ctx, args[0])
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, results)
	}
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i := range results {
		cmd.Printf("  [%d] (%.3f) %s\n", i+1, results[i].Relevance, results[i].Text())
		if i < searchExplain {
			why, err := a.Enricher.ExplainRelevance(ctx, args[0], results[i].Text())
			if err != nil {
				cmd.Printf("      (no explanation: %v)\n", err)
				continue
			}
			cmd.Printf("      %s\n", why)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.Services.Search.SearchInFile(ctx, args[1], args[0])
	if errors.Is(err, app.ErrNoDocumentContent) {
		return fmt.Errorf("conversation %s has no processed documents yet", args[0])
	}
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, answer)
	}
	cmd.Println(answer.Answer)
	for _, section := range answer.RelevantSections {
		cmd.Printf("  - (%.2f) %s\n", section.RelevanceScore, section.Text)
	}
	return nil
}
