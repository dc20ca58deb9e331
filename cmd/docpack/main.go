// Command docpack builds documentation packs from web sources and serves
// grounded retrieval over them, either in-process from the CLI or through
// an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docpack-go/cmd/docpack/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
