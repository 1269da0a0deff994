package main

import (
	"fmt"
	"os"

	"github.com/victordavi-mos/OptimizePlex/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
