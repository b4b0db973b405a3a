// Command binderscan recovers Binder dispatch tables from a program and
// records them per firmware.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/binderscan/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
