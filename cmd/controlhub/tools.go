package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/tools"
)

// ToolsCmd lists the registered browser tools.
func ToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List browser tools and their argument schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tools.NewRegistry(tools.BrowserTools(control.NewService())...)
			out := cmd.OutOrStdout()
			for _, t := range registry.List() {
				schema, err := json.MarshalIndent(t.Schema(), "  ", "  ")
				if err != nil {
					return fmt.Errorf("encode schema for %s: %w", t.Name(), err)
				}
				fmt.Fprintf(out, "%s\n  %s\n  %s\n\n", t.Name(), t.Description(), schema)
			}
			return nil
		},
	}
}
