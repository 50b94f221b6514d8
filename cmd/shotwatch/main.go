package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"shotwatch/internal/config"
	"shotwatch/internal/logging"
	"shotwatch/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	return runWithSignals(args, out, errOut, signalCh, nil)
}

// runWithSignals is run with the signal source and an optional hook that
// receives the bound listen address once the server is up.
func runWithSignals(args []string, out io.Writer, errOut io.Writer, signalCh <-chan os.Signal, ready func(addr string)) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		fmt.Fprintln(errOut, err)
		return exitCodeUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, version.Get().Line("shotwatch"))
		return exitCodeSuccess
	}

	settings, err := config.Load(cfg.ConfigPath, cfg.overrides())
	if err != nil {
		fmt.Fprintf(errOut, "load config: %v\n", err)
		return exitCodeConfig
	}
	level, ok := logging.ParseLevel(settings.Log.Level)
	if !ok {
		fmt.Fprintf(errOut, "load config: invalid log.level %q\n", settings.Log.Level)
		return exitCodeConfig
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), level, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := cancelOnSignal(logger, cancel, signalCh)
	defer stopSignals()

	if err := runServer(ctx, settings, logger, ready); err != nil {
		logger.Error("shotwatch stopped with error", map[string]string{
			"error": err.Error(),
		})
		return exitCodeRuntime
	}
	return exitCodeSuccess
}
