package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"vouchgraph/internal/domain"
	"vouchgraph/internal/search"
)

func statsCmd(opts *options) *cobra.Command {
	var (
		input string
		term  string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the vouch graph",
		Long:  "Summarize a previously exported graph, or fetch a fresh one when no input is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				g   domain.GraphData
				err error
			)
			if input != "" {
				g, err = readGraph(input)
			} else {
				g, err = fetchGraph(cmd.Context(), opts.cfg)
			}
			if err != nil {
				return err
			}

			printStats(cmd.OutOrStdout(), domain.ComputeStats(search.Filter(g, term)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Exported graph to read (.json or .yaml)")
	cmd.Flags().StringVarP(&term, "search", "s", "", "Restrict to nodes matching this term and their neighbours")
	return cmd
}

func printStats(w io.Writer, stats domain.GraphStats) {
	banner(w, "network statistics")

	if stats.NodeCount == 0 {
		fmt.Fprintln(w, "  No accounts in the graph.")
		return
	}

	fmt.Fprintf(w, "  %s\n\n", stats.Summary())

	subtle.Fprintln(w, "  Top vouchers")
	table(w, []string{"#", "Account", "Given", "Vouched"}, leaderboard(stats.TopVouchers, func(n domain.VouchNode) []string {
		return []string{strconv.Itoa(n.VouchesGiven), domain.FormatAmount(n.AmountVouched)}
	}))
	fmt.Fprintln(w)

	subtle.Fprintln(w, "  Top receivers")
	table(w, []string{"#", "Account", "Received", "Amount"}, leaderboard(stats.TopReceivers, func(n domain.VouchNode) []string {
		return []string{strconv.Itoa(n.VouchesReceived), domain.FormatAmount(n.AmountReceived)}
	}))
}

func leaderboard(nodes []domain.VouchNode, cols func(domain.VouchNode) []string) [][]string {
	rows := make([][]string, 0, len(nodes))
	for i, n := range nodes {
		rows = append(rows, append([]string{strconv.Itoa(i + 1), n.Name}, cols(n)...))
	}
	return rows
}
