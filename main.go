package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/bootcheck/cmd"
	"grimm.is/bootcheck/internal/config"
	"grimm.is/bootcheck/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		arch := runFlags.String("arch", "x86_64", "Guest architecture (x86_64, aarch64)")
		suiteName := runFlags.String("suite", "basic", "Test suite to run")
		runFlags.StringVar(suiteName, "s", "basic", "Test suite (short)")
		timeoutSec := runFlags.Int("timeout", 120, "Per-case timeout in seconds")
		runFlags.IntVar(timeoutSec, "t", 120, "Per-case timeout in seconds (short)")
		kernel := runFlags.String("kernel", "", "Kernel image path")
		rootfs := runFlags.String("rootfs", "", "Root filesystem image path")
		output := runFlags.String("output", "", "Write the JSON report to this path")
		runFlags.StringVar(output, "o", "", "JSON report path (short)")
		memory := runFlags.Int("memory", 0, "Guest memory in MB")
		appendArgs := runFlags.String("append", "", "Extra kernel command line")
		qemuBin := runFlags.String("qemu", "", "Emulator binary override")
		configPath := runFlags.String("config", "", "Harness config file")
		runFlags.StringVar(configPath, "c", "", "Harness config file (short)")
		historyDB := runFlags.String("history-db", cmd.DefaultHistoryDB(), "Run history database path (empty disables)")
		unattended := runFlags.Bool("unattended", false, "Unattended/CI mode: skip interactive-only cases")
		echo := runFlags.Bool("echo-console", false, "Mirror guest console to stderr")
		verbose := runFlags.Bool("v", false, "Debug logging")
		runFlags.Parse(os.Args[2:])

		if *verbose {
			logging.Default().SetLevel(logging.LevelDebug)
		}

		opts := config.Options{
			Arch:        *arch,
			Suite:       *suiteName,
			Timeout:     time.Duration(*timeoutSec) * time.Second,
			Kernel:      *kernel,
			Rootfs:      *rootfs,
			Output:      *output,
			MemoryMB:    *memory,
			Append:      *appendArgs,
			QEMUBin:     *qemuBin,
			HistoryDB:   *historyDB,
			Unattended:  *unattended,
			EchoConsole: *echo,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := cmd.RunSuite(ctx, opts, *configPath)
		switch {
		case err == nil:
		case errors.Is(err, cmd.ErrTestsFailed), errors.Is(err, cmd.ErrCancelled):
			os.Exit(1)
		default:
			fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
			var ce *config.ConfigError
			if errors.As(err, &ce) {
				os.Exit(2)
			}
			os.Exit(1)
		}

	case "suites":
		if err := cmd.RunSuites(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "history":
		histFlags := flag.NewFlagSet("history", flag.ExitOnError)
		dbPath := histFlags.String("db", "", "History database path")
		limit := histFlags.Int("n", 20, "Number of runs to show")
		flaky := histFlags.Bool("flaky", false, "Show per-case flakiness report")
		histFlags.Parse(os.Args[2:])

		if err := cmd.RunHistory(*dbPath, *limit, *flaky); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "version":
		cmd.RunVersion()

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Print(`bootcheck - boot-and-test harness for QEMU guest images

Usage:
  bootcheck run -kernel <path> -rootfs <path> [options]   Run a test suite
  bootcheck suites                                        List defined suites
  bootcheck history [-n N] [-flaky]                       Show past runs
  bootcheck version                                       Print version

Run options:
  -arch <arch>        Guest architecture: x86_64 (default), aarch64
  -suite, -s <name>   Suite: basic (default), network, ssh, full
  -timeout, -t <sec>  Per-case timeout in seconds (default 120)
  -output, -o <path>  Write the JSON report to this path
  -memory <MB>        Guest memory size
  -append <args>      Extra kernel command line
  -qemu <path>        Emulator binary override
  -config, -c <path>  Harness config file (default bootcheck.yaml)
  -unattended         Skip cases that need an operator
  -echo-console       Mirror guest console to stderr
  -v                  Debug logging

Exit status: 0 when every test passed, non-zero otherwise.
`)
}
