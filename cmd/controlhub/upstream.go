package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vowser/controlhub/internal/upstream"
)

// UpstreamCmd groups one-shot correlated calls against the upstream service.
func UpstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upstream",
		Short: "Run a single request against the upstream path service",
	}

	cmd.AddCommand(upstreamOp("check-graph", "Show graph node and relationship counts",
		func(ctx context.Context, l *upstream.Link, _ []string) (any, error) {
			return l.CheckGraph(ctx)
		}))
	cmd.AddCommand(upstreamOp("cleanup", "Remove stale path relations",
		func(ctx context.Context, l *upstream.Link, _ []string) (any, error) {
			return l.CleanupPaths(ctx)
		}))
	cmd.AddCommand(upstreamOp("create-indexes", "Create the graph indexes",
		func(ctx context.Context, l *upstream.Link, _ []string) (any, error) {
			return l.CreateIndexes(ctx)
		}))

	var limit int
	var domain string
	search := upstreamOp("search <query>", "Search stored paths",
		func(ctx context.Context, l *upstream.Link, args []string) (any, error) {
			return l.SearchPath(ctx, args[0], limit, domain)
		})
	search.Args = cobra.ExactArgs(1)
	search.Flags().IntVar(&limit, "limit", 3, "maximum number of paths")
	search.Flags().StringVar(&domain, "domain", "", "domain hint")
	cmd.AddCommand(search)

	return cmd
}

type upstreamFunc func(ctx context.Context, l *upstream.Link, args []string) (any, error)

// upstreamOp connects, waits for the link (bounded by upstream.connectTimeout),
// runs fn and prints its reply as JSON.
func upstreamOp(use, short string, fn upstreamFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *ServerConfig
			opts := linkOptions(c)
			link := upstream.NewLink(opts, nil)
			defer link.Disconnect()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			waitCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
			defer cancel()

			link.Connect()
			if err := link.WaitConnected(waitCtx); err != nil {
				return fmt.Errorf("connect to %s: %w", opts.URL, err)
			}

			res, err := fn(ctx, link, args)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
