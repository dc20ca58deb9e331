package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docpack-go/internal/logging"
)

// NewEnsureCmd constructs the `docpack ensure` command, which builds a pack
// in-process and reports its key and status.
func NewEnsureCmd() *cobra.Command {
	var tf topicFlags
	var noWait bool

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Build a documentation pack and print its key and status",
		Long: `Build a documentation pack from one or more source sites.

The first ingest runs before the key is printed. Unless --no-wait is given,
the command then waits for background enrichment and prints the final
completeness.

Examples:
  docpack ensure --domain kubernetes --version 1.30 --source https://kubernetes.io/docs/
  docpack ensure --source https://go.dev/doc/ --subtopic modules --no-wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic := tf.topic()
			if len(topic.Sources) == 0 {
				return fmt.Errorf("ensure: at least one http(s) --source is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ensure: %w", err)
			}

			key, status, err := st.cache.EnsurePack(ctx, topic, tf.language)
			if err != nil {
				_ = st.shutdown(cancelled())
				return fmt.Errorf("ensure: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:    %s\nstatus: %s\n", key, status)

			if noWait {
				_ = st.shutdown(cancelled())
				return nil
			}
			if err := st.shutdown(ctx); err != nil {
				if !isCanceled(err) {
					return fmt.Errorf("ensure: %w", err)
				}
				fmt.Fprintln(out, "enrichment interrupted")
			}

			if m, ok := st.cache.Manifest(key); ok {
				fmt.Fprintf(out, "completeness: %.2f\n", m.Completeness)
			}
			return nil
		},
	}

	tf.register(cmd)
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return after the first ingest without waiting for enrichment")

	return cmd
}

// cancelled returns a context that is already done, so shutdown abandons
// queued enrichment instead of waiting for it.
func cancelled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
