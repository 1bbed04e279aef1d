// Package app wires the logging router, orchestrator, and HTTP surface into
// a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"strconv"
	"strings"
	"time"

	servernet "engain/server/internal/net"
	"engain/server/internal/sim"
	"engain/server/internal/telemetry"
	"engain/server/logging"
	loggingsinks "engain/server/logging/sinks"
)

// Config carries process-level settings.
type Config struct {
	Addr   string
	Logger telemetry.Logger
}

// Run blocks until ctx is canceled or the HTTP server fails. Shutdown lets
// the in-flight tick complete before halting the simulation.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	logConfig := logging.DefaultConfig()
	if raw := os.Getenv("LOG_SINKS"); raw != "" {
		logConfig.EnabledSinks = splitList(raw)
	}
	sinks := map[string]logging.Sink{
		"console": loggingsinks.NewConsole(os.Stdout, logConfig.Console),
		"logrus":  loggingsinks.NewLogrus(os.Stdout),
	}
	if path := os.Getenv("LOG_JSON_PATH"); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log %s: %w", path, err)
		}
		defer file.Close()
		sinks["json"] = loggingsinks.NewJSON(file, logConfig.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, log.Default(), sinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := telemetry.NewCounters()

	orcCfg := sim.DefaultConfig()
	orcCfg.Logger = logger
	orcCfg.Metrics = metrics
	orcCfg.Publisher = router
	orcCfg.Seed = os.Getenv("WORLD_SEED")
	if raw := os.Getenv("TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			orcCfg.TickRate = value
		} else {
			logger.Printf("invalid TICK_RATE=%q, using %d", raw, orcCfg.TickRate)
		}
	}
	if raw := os.Getenv("COMMAND_CAPACITY"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			orcCfg.CommandCapacity = value
		} else {
			logger.Printf("invalid COMMAND_CAPACITY=%q, using %d", raw, orcCfg.CommandCapacity)
		}
	}

	orc, err := sim.New(orcCfg, sim.DefaultAdapters(), sim.DefaultAlertHandlers())
	if err != nil {
		return fmt.Errorf("construct orchestrator: %w", err)
	}

	simCtx, stopSim := context.WithCancel(context.Background())
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		if rerr := orc.Run(simCtx); rerr != nil {
			logger.Printf("simulation loop exited: %v", rerr)
		}
	}()

	handler := servernet.NewHandler(orc, servernet.HandlerConfig{
		Logger:  logger,
		Metrics: metrics,
	})

	srv := &nethttp.Server{
		Addr:    addr,
		Handler: handler,
		// Per-connection deadlines keep slow clients from holding
		// transport workers; the tick loop never waits on them anyway.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	logger.Printf("server listening on %s (tick rate %d, epoch %s)", addr, orc.TickRate(), orc.Epoch())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Printf("http shutdown: %v", serr)
		}
		stopSim()
		<-simDone
		return nil
	case err := <-serveErr:
		stopSim()
		<-simDone
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
