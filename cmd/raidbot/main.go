package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raidbot/internal/app"
	"raidbot/internal/config"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./settings.yml", "path to settings file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfgPath)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, cfgPath string) int {
	a, err := app.New(cfgPath)
	if err != nil {
		if ce, ok := config.AsError(err); ok {
			fmt.Fprintln(os.Stderr, ce.Remediation())
		}
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopStartFailed)
		return 1
	}

	reason := app.StopCompleted
	select {
	case <-ctx.Done():
		reason = app.StopSignal
	case <-a.Done():
	}

	stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = a.Stop(stopCtx, reason)
	return 0
}
