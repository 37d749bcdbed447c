package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sawpanic/sentirun/internal/nlp"
	"github.com/sawpanic/sentirun/internal/social"
)

// Polarity beyond ±labelThreshold counts as positive or negative
const labelThreshold = 0.1

type analysis struct {
	Text    string                `json:"text"`
	Symbols []string              `json:"symbols"`
	Score   social.SentimentScore `json:"score"`
	Label   string                `json:"label"`
}

type analysisSummary struct {
	Total       int        `json:"total"`
	Positive    int        `json:"positive"`
	Negative    int        `json:"negative"`
	Neutral     int        `json:"neutral"`
	AvgPolarity float64    `json:"avg_polarity"`
	Results     []analysis `json:"results"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		symbol string
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Score the sentiment of ad hoc text",
		Long: `Runs the configured sentiment model over the given text, or over every
non-empty line of --file, and prints the scores with a positive, negative
and neutral summary.

Examples:
  sentirun analyze "$AAPL looking bullish into earnings"
  sentirun analyze --file posts.txt --symbol TSLA --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := analyzeInputs(args, file)
			if err != nil {
				return err
			}

			scorer, err := nlp.NewScorer(cfg.Sentiment, nil, nil)
			if err != nil {
				return err
			}

			inst := social.Instrument{Symbol: strings.ToUpper(symbol)}
			summary := analysisSummary{Results: make([]analysis, 0, len(texts))}
			var polaritySum float64
			for _, text := range texts {
				score, err := scorer.Score(cmd.Context(), text)
				if err != nil {
					return fmt.Errorf("score %q: %w", text, err)
				}
				score = score.Clamp()

				res := analysis{Text: text, Score: score, Label: label(score.Polarity)}
				if symbol != "" {
					res.Symbols = nlp.ExtractSymbols(nlp.Normalize(text), inst)
				} else {
					res.Symbols = nlp.Cashtags(text)
				}
				summary.Results = append(summary.Results, res)

				switch res.Label {
				case "positive":
					summary.Positive++
				case "negative":
					summary.Negative++
				default:
					summary.Neutral++
				}
				polaritySum += score.Polarity
			}
			summary.Total = len(summary.Results)
			if summary.Total > 0 {
				summary.AvgPolarity = polaritySum / float64(summary.Total)
			}

			if asJSON {
				return printJSON(cmd, summary)
			}
			printAnalysis(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "Symbol whose mentions should be detected")
	cmd.Flags().StringVar(&file, "file", "", "Score every line of this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

func analyzeInputs(args []string, file string) ([]string, error) {
	if file == "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("provide text or --file")
		}
		return []string{strings.Join(args, " ")}, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return texts, nil
}

func label(polarity float64) string {
	switch {
	case polarity > labelThreshold:
		return "positive"
	case polarity < -labelThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

func printAnalysis(cmd *cobra.Command, s analysisSummary) {
	out := cmd.OutOrStdout()
	for _, r := range s.Results {
		fmt.Fprintf(out, "%-8s %+.2f conf %.2f sarcasm %.2f %v  %s\n",
			r.Label, r.Score.Polarity, r.Score.Confidence, r.Score.SarcasmProb, r.Symbols, r.Text)
	}
	if s.Total > 1 {
		fmt.Fprintf(out, "\n%d texts: %d positive, %d negative, %d neutral, average polarity %+.3f\n",
			s.Total, s.Positive, s.Negative, s.Neutral, s.AvgPolarity)
	}
}
