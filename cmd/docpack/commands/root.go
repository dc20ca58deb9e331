// Package commands defines all Cobra CLI commands for the docpack binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docpack-go/internal/audit"
	"github.com/54b3r/docpack-go/internal/config"
	"github.com/54b3r/docpack-go/internal/logging"
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath, envFile string

	root := &cobra.Command{
		Use:   "docpack",
		Short: "docpack builds documentation packs and retrieves grounded context from them",
		Long: `docpack fetches documentation pages from a set of source sites, indexes
them as a pack keyed by domain, version and sources, and answers queries
with reranked passages and citations.

Settings are read from DOCPACK_* environment variables, a .env file and an
optional YAML config file (~/.docpack/config.yaml). Environment variables
always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}

			log := logging.New()
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Logging env vars may have come from the config file.
			log = logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docpack/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; missing files are ignored")

	root.AddCommand(
		NewServeCmd(),
		NewEnsureCmd(),
		NewSearchCmd(),
		NewPacksCmd(),
		NewVersionCmd(),
	)

	return root
}
