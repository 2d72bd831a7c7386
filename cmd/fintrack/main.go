package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"fintrack/internal/app"
	"fintrack/internal/config"
)

func main() {
	var (
		cfgPath string
		envFile string
		run     string
		at      string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before the config; missing is fine")
	flag.StringVar(&run, "run", "", "run the named jobs once and exit (comma separated, or \"all\")")
	flag.StringVar(&at, "at", "", "with -run: replay as of this RFC 3339 time")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: load env:", err)
		os.Exit(1)
	}

	var replay time.Time
	if at != "" {
		if run == "" {
			fmt.Fprintln(os.Stderr, "fatal: -at requires -run")
			os.Exit(2)
		}
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal: -at:", err)
			os.Exit(2)
		}
		replay = t
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{ConfigPath: cfgPath, At: replay})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if run != "" {
		err := a.RunOnce(ctx, strings.Split(run, ","))
		_ = a.Stop(context.Background(), app.StopOneShot)
		if err != nil {
			fmt.Fprintln(os.Stderr, "run failed:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	<-ctx.Done()
	reason := app.StopSignal
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "stop:", err)
		os.Exit(1)
	}
}
