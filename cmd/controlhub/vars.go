package cli

import (
	"github.com/spf13/cobra"

	"github.com/vowser/controlhub/internal/config"
	"github.com/vowser/controlhub/internal/logging"
)

// AppVersion is stamped at build time:
// -ldflags "-X github.com/vowser/controlhub/cmd/controlhub.AppVersion=v1.2.3"
var AppVersion = "dev"

// Shared CLI flags
var (
	cfgFile string
	verbose bool
)

// ServerConfig holds the effective configuration (set by main, overlaid by --config)
var ServerConfig *config.Config

// baseConfig is the configuration before any --config overlay; the watcher
// re-applies the file on top of it.
var baseConfig config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c
	baseConfig = *c

	rootCmd := &cobra.Command{
		Use:   "controlhub",
		Short: "controlhub - browser control hub",
		Long: `controlhub relays commands between browser agents connected over
WebSocket and the upstream path-graph service.

Just type 'controlhub' to start the server.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file overlaid on the built-in defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ToolsCmd())
	rootCmd.AddCommand(UpstreamCmd())
	rootCmd.AddCommand(ConfigCmd())
	rootCmd.AddCommand(VersionCmd())

	return rootCmd
}

// loadConfig overlays --config, validates, and sets up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	c := baseConfig
	if cfgFile != "" {
		if err := c.MergeFile(cfgFile); err != nil {
			return err
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	*ServerConfig = c

	level := c.Log.Level
	if verbose {
		level = "debug"
	}
	return logging.Setup(cmd.ErrOrStderr(), c.Log.Format, level)
}
