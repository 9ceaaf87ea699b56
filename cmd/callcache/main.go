package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goforj/callcache/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(nil)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "callcache:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
