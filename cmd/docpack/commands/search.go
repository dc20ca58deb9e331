package commands

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/retrieval"
)

// NewSearchCmd constructs the `docpack search` command, which builds a pack
// in-process and prints the passages retrieved for a query.
func NewSearchCmd() *cobra.Command {
	var tf topicFlags
	var k int

	cmd := &cobra.Command{
		Use:   "search [flags] QUERY",
		Short: "Build a pack and print the passages and citations for a query",
		Long: `Build a documentation pack in-process, then run dense recall and reranking
for QUERY and print the selected passages and citations.

Examples:
  docpack search --source https://go.dev/doc/ --subtopic modules "how do I vendor dependencies"
  docpack search --domain kubernetes --source https://kubernetes.io/docs/ --k 4 "pod disruption budget"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("search: query must not be empty")
			}
			topic := tf.topic()
			if len(topic.Sources) == 0 {
				return fmt.Errorf("search: at least one http(s) --source is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = st.shutdown(cancelled()) }()

			key, status, err := st.cache.EnsurePack(ctx, topic, tf.language)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if k <= 0 {
				k = st.settings.DefaultK
			}
			res, err := st.retriever.Retrieve(ctx, key, query, k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pack %s (%s)\n", key, status)
			printResult(out, res)
			return nil
		},
	}

	tf.register(cmd)
	cmd.Flags().IntVar(&k, "k", 0, "Number of passages to return (default: DOCPACK_DEFAULT_K)")

	return cmd
}

// printResult writes the context titles and URLs followed by the citations.
func printResult(w io.Writer, res retrieval.Result) {
	if len(res.Context) == 0 {
		fmt.Fprintln(w, "no passages found")
		return
	}
	fmt.Fprintln(w, "\ncontext:")
	for i, p := range res.Context {
		fmt.Fprintf(w, "  %d. %s\n     %s\n", i+1, p.Title, p.URL)
	}
	fmt.Fprintln(w, "\ncitations:")
	for _, c := range res.Citations {
		fmt.Fprintf(w, "  [%.3f] %s  %s\n", c.Score, c.Title, c.URL)
	}
}
