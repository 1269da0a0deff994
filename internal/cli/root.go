// Package cli wires the optimizeplex subcommands: argument parsing, config
// layering, preflight checks, and the run loop with its dashboard. Everything
// below this package is library code with no knowledge of flags or exit
// codes.
package cli

import (
	"errors"
	"fmt"
)

// Run dispatches the subcommand. The returned error is mapped to a process
// exit code by ExitCode; usage and environment failures are wrapped so they
// exit 2 instead of 1.
func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runRun(args[1:])
	case "scan":
		return runScan(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "version":
		return runVersion(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return usageErrf("unknown command %q", args[0])
	}
}

// usageError marks failures of the caller's making: bad flags, a missing
// root, an environment that cannot run encodes. They exit 2; everything else
// exits 1.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrf(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func asUsage(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err: err}
}

// ExitCode maps an error from Run to the process exit status: 0 for a
// completed run (individual job failures included), 2 for usage and
// environment failures caught before any job ran, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func printRootUsage() {
	fmt.Println("optimizeplex: batch 1080p/720p rendition encoder for oversized libraries")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  optimizeplex run [flags] <library-root>")
	fmt.Println("  optimizeplex scan [flags] <library-root>")
	fmt.Println("  optimizeplex doctor [flags]")
	fmt.Println("  optimizeplex version [--check]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      scan the library, plan renditions, and encode them")
	fmt.Println("  scan     show what run would do without encoding anything")
	fmt.Println("  doctor   check ffmpeg, NVENC, and log directory prerequisites")
	fmt.Println("  version  print the build version; --check compares against the latest release")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Settings layer as defaults < config file < OPTIMIZEPLEX_* env < flags")
	fmt.Println("  - Use --no-dashboard for plain line output on a TTY")
	fmt.Println("  - Exit codes: 0 run completed, 2 usage/environment failure, 1 internal error")
}
