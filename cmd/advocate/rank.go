package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
)

type rankOptions struct {
	query string
	file  string
	all   bool
}

func newRankCmd(a *app) *cobra.Command {
	var opts rankOptions
	cmd := &cobra.Command{
		Use:   "rank [passage...]",
		Short: "Find the passage most similar to a query",
		Long: "Embeds the query and every passage in one request and prints the most similar\n" +
			"passage. Passages come from the arguments or from --file, split on blank lines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			passages := args
			if opts.file != "" {
				raw, err := os.ReadFile(opts.file)
				if err != nil {
					return err
				}
				passages = append(passages, ranker.SplitPassages(string(raw))...)
			}

			ctx := cmd.Context()
			emb, closeEmb, err := newEmbedder(ctx, a.cfg.Embedding)
			if err != nil {
				return err
			}
			if emb == nil {
				return errors.New("ranking needs an embedding provider; set embedding.provider")
			}
			if closeEmb != nil {
				defer closeEmb()
			}
			return runRank(ctx, cmd.OutOrStdout(), ranker.New(emb), opts, passages)
		},
	}
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "text to match (required)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file of passages separated by blank lines")
	cmd.Flags().BoolVar(&opts.all, "all", false, "print every passage with its score")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

type rankFunc interface {
	Rank(ctx context.Context, query string, passages []string) ([]ranker.Result, error)
}

func runRank(ctx context.Context, out io.Writer, r rankFunc, opts rankOptions, passages []string) error {
	if strings.TrimSpace(opts.query) == "" {
		return fmt.Errorf("%w: query cannot be empty", errorskg.ErrInvalidInput)
	}
	results, err := r.Rank(ctx, opts.query, passages)
	if errors.Is(err, errorskg.ErrEmptyInput) {
		fmt.Fprintln(out, "No passages to rank.")
		return nil
	}
	if err != nil {
		return err
	}

	if opts.all {
		for _, res := range results {
			fmt.Fprintf(out, "[%d] %.4f  %s\n", res.Index, res.Score, firstLine(res.Passage))
		}
		fmt.Fprintln(out)
	}
	best, _ := ranker.Best(results)
	fmt.Fprintln(out, ranker.FormatBest(best))
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
