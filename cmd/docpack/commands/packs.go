package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docpack-go/internal/pack"
)

// listPacksResponse mirrors the body of GET /api/packs.
type listPacksResponse struct {
	Packs []pack.Summary `json:"packs"`
}

// NewPacksCmd constructs the `docpack packs` command, which lists the packs
// of a running server.
func NewPacksCmd() *cobra.Command {
	var serverURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "packs",
		Short: "List the packs held by a running docpack server",
		Long: `List the packs held by a running docpack server via GET /api/packs.

DOCPACK_API_KEY is sent as a Bearer token when set.

Examples:
  docpack packs
  docpack packs --server http://10.0.0.5:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			packs, err := fetchPacks(cmd.Context(), client, serverURL, os.Getenv("DOCPACK_API_KEY"))
			if err != nil {
				return fmt.Errorf("packs: %w", err)
			}
			printPacks(cmd.OutOrStdout(), packs)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "Base URL of the docpack server")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}

// fetchPacks calls GET /api/packs on base.
func fetchPacks(ctx context.Context, client *http.Client, base, apiKey string) ([]pack.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/packs", nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out listPacksResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Packs, nil
}

// printPacks writes one row per pack.
func printPacks(w io.Writer, packs []pack.Summary) {
	if len(packs) == 0 {
		fmt.Fprintln(w, "no packs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tDOMAIN\tVERSION\tLANG\tCOMPLETENESS\tVECTORS")
	for _, p := range packs {
		domain := p.Domain
		if domain == "" {
			domain = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%d\n", p.Key[:min(12, len(p.Key))], domain, p.Version, p.Language, p.Completeness, p.Vectors)
	}
	_ = tw.Flush()
}
