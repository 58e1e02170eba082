package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flowdesk/internal/config"
	"flowdesk/internal/log"
)

func main() {
	configPath := flag.String("config", "flowdesk.json", "path to the server config file")
	envFile := flag.String("env", ".env", "optional .env file with FLOWDESK_* overrides")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [serve|chat]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*configPath, *envFile, flag.Arg(0)); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, cmd string) error {
	cfg, err := config.NewLoader(configPath, envFile).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.Close()

	switch cmd {
	case "", "serve":
		return app.Serve(ctx)
	case "chat":
		return app.Chat(ctx, os.Stdin, os.Stdout)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
