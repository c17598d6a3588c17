package main

import (
	"fmt"
	"os"

	"github.com/trvinh/fDOG/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(cli.ExitFatal)
		}
	}()

	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
