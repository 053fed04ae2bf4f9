// Command growth tracks experience, levels and daily streaks.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/growth/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
