// Command statewire compiles, inspects and runs connection-declared state
// machines.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/statewire/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "statewire:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
