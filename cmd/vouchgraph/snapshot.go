package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vouchgraph/internal/codec"
	"vouchgraph/internal/config"
	"vouchgraph/internal/domain"
	"vouchgraph/internal/search"
)

func snapshotCmd(opts *options) *cobra.Command {
	var (
		format string
		output string
		term   string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the graph once and export it",
		Long: "Fetch the vouch graph from the configured upstreams and write it as " +
			strings.Join(codec.Formats(), " or ") + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := codec.ByFormat(format)
			if !ok {
				return fmt.Errorf("unsupported format %q (want one of %s)", format, strings.Join(codec.Formats(), ", "))
			}

			g, err := fetchGraph(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			g = search.Filter(g, term)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := c.Export(g, w); err != nil {
				return fmt.Errorf("export: %w", err)
			}

			if output != "" && output != "-" {
				good.Fprintf(cmd.ErrOrStderr(), "Wrote %d nodes and %d links to %s\n", len(g.Nodes), len(g.Links), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVarP(&term, "search", "s", "", "Only export nodes matching this term and their neighbours")
	return cmd
}

// fetchGraph builds one graph from the configured upstreams
func fetchGraph(ctx context.Context, cfg *config.Config) (domain.GraphData, error) {
	logger, _, err := newLogger(cfg.Log)
	if err != nil {
		return domain.GraphData{}, err
	}
	defer logger.Sync()

	g, err := newGraphService(cfg, nil, logger).GetVouchGraph(ctx)
	if err != nil {
		return domain.GraphData{}, err
	}
	return g, nil
}

// readGraph parses an exported graph, picking the codec from the extension
func readGraph(path string) (domain.GraphData, error) {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	c, ok := codec.ByFormat(strings.ToLower(format))
	if !ok {
		return domain.GraphData{}, fmt.Errorf("cannot infer format of %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.GraphData{}, err
	}
	defer f.Close()

	g, err := c.Parse(f)
	if err != nil {
		return domain.GraphData{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return g, nil
}
