package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dealwatch/internal/app"
	"dealwatch/internal/config"
)

func main() {
	var (
		cfgPath string
		envFile string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file with DEALWATCH_* secrets")
	flag.BoolVar(&once, "once", false, "run one cycle, print its summary and exit")
	flag.Parse()

	if err := config.LoadEnvFile(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if once {
		sum, runErr := a.RunOnce(ctx)
		_ = json.NewEncoder(os.Stdout).Encode(sum)
		stop(a)
		if runErr != nil {
			fmt.Fprintln(os.Stderr, "cycle failed:", runErr)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stop(a)
		os.Exit(1)
	}
	<-a.Done()
	stop(a)
}

func stop(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
	}
}
