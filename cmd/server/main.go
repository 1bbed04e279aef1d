package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"engain/server/internal/app"
	"engain/server/internal/telemetry"
)

func main() {
	var addr string
	flag.StringVar(&addr, "addr", ":8080", "listen address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := app.Config{
		Addr:   addr,
		Logger: telemetry.WrapLogger(log.Default()),
	}
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
