package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/suPer8Hu/agentk/internal/app"
	"github.com/suPer8Hu/agentk/internal/chat"
	"github.com/suPer8Hu/agentk/internal/config"
	"github.com/suPer8Hu/agentk/internal/logging"
)

func main() {
	_ = godotenv.Load()

	modelID := flag.String("model", "", "model id to chat with")
	sessionID := flag.String("session", "", "session id to resume")
	shared := flag.Bool("shared", false, "use the whole session as context")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	r := newREPL(a.Chat, a.Sessions, a.Catalog, os.Stdout)
	if *modelID == "" {
		if enabled, err := a.Catalog.Enabled(ctx); err == nil && len(enabled) > 0 {
			*modelID = enabled[0].ID
		}
	}
	if _, err := a.Chat.Select(ctx, chat.Selection{SessionID: *sessionID, ModelID: *modelID, Shared: *shared}); err != nil {
		fmt.Fprintf(os.Stderr, "select: %v\n", err)
		os.Exit(1)
	}

	r.welcome()
	r.run(ctx, bufio.NewScanner(os.Stdin))
}
