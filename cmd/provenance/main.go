// Command provenance inspects, moves and replays provenance graphs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/provenance/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
