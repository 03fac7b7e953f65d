package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quotelens/internal/enrich"
	"quotelens/internal/model"
	"quotelens/internal/segment"
)

var insightValidate bool

var insightCmd = &cobra.Command{
	Use:   "insight [document-id]",
	Short: "Summarize a stored document and optionally grade its quotes",
	Args:  cobra.ExactArgs(1),
	RunE:  runInsight,
}

func init() {
	insightCmd.Flags().BoolVar(&insightValidate, "validate", false, "score every successful quote from 1 to 5")
	rootCmd.AddCommand(insightCmd)
}

func runInsight(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	quotes, err := a.Services.Documents.ListQuotes(ctx, args[0])
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return fmt.Errorf("document %s has no quotes", args[0])
	}

	texts := make([]string, 0, len(quotes))
	for i := range quotes {
		texts = append(texts, quotes[i].Text())
	}
	info, err := a.Enricher.ExtractKeyInfo(ctx, strings.Join(texts, "\n\n"))
	if err != nil {
		return err
	}

	scores := map[string]int{}
	if insightValidate {
		for i := range quotes {
			if quotes[i].Status != model.QuoteStatusSuccess {
				continue
			}
			score, err := a.Enricher.ValidateQuote(ctx, toEnrichQuote(quotes[i]))
			if err != nil {
				cmd.PrintErrf("quote %s: %v\n", quotes[i].ID, err)
				continue
			}
			scores[quotes[i].ID] = score
		}
	}

	if outputJSON {
		return printJSON(cmd, map[string]any{"key_info": info, "scores": scores})
	}
	cmd.Printf("topic: %s\n", info.MainTopic)
	for _, p := range info.KeyPoints {
		cmd.Printf("  * %s\n", p)
	}
	for _, item := range info.ActionItems {
		cmd.Printf("  -> %s\n", item)
	}
	for id, score := range scores {
		cmd.Printf("  quote %s: %d/5\n", id, score)
	}
	return nil
}

func toEnrichQuote(q model.Quote) enrich.Quote {
	out := enrich.Quote{
		Record: segment.Record{
			OriginalText: q.OriginalText,
			Speaker:      q.Speaker,
			Position:     q.Position,
		},
	}
	if q.CleanedText != nil {
		out.CleanedText = *q.CleanedText
	}
	if q.Category != nil {
		out.Classification.Category = *q.Category
	}
	if q.Subcategory != nil {
		out.Classification.Subcategory = *q.Subcategory
	}
	if q.Confidence != nil {
		out.Classification.Confidence = *q.Confidence
	}
	return out
}
