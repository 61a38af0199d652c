// Package main is the vox CLI: a live voice conversation with a remote
// agent over a websocket gateway.
//
// Usage:
//
//	go run ./cmd/vox
//
// Environment variables:
//
//	VOX_SERVER_URL   - Agent gateway websocket endpoint
//	VOX_API_KEY      - Optional bearer token
//	VOX_VOICE        - Agent voice (Puck, Charon, Kore, Fenrir, Aoede)
//	VOX_METRICS_ADDR - Optional Prometheus /metrics listen address
//	VOX_DEBUG        - Verbose logging
//
// Controls:
//
//	r  - Restart the session
//	t  - Print the conversation transcript
//	q  - Quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/vox/internal/audioio"
	"github.com/vango-go/vox/internal/config"
	"github.com/vango-go/vox/internal/metrics"
	"github.com/vango-go/vox/pkg/live/session"
	"github.com/vango-go/vox/pkg/live/transcript"
	"github.com/vango-go/vox/pkg/live/wire"
	"github.com/vango-go/vox/pkg/live/wsclient"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vox: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dial := func(ctx context.Context, setup wire.Setup) (session.Channel, error) {
		return wsclient.Dial(ctx, setup, wsclient.Options{
			URL:         cfg.ServerURL,
			APIKey:      cfg.APIKey,
			DialTimeout: cfg.DialTimeout,
			Logger:      logger,
		})
	}

	ctrl, err := session.New(session.Options{
		Dial:         dial,
		Provider:     audioio.NewProvider(logger),
		Voice:        cfg.Voice,
		ChunkSamples: cfg.ChunkSamples,
		Logger:       logger,
		Metrics:      m,
		OnStatus: func(status string) {
			fmt.Printf("[%s]\n", status)
		},
		OnTranscript: func(turns []transcript.Turn) {
			if len(turns) == 0 {
				return
			}
			last := turns[len(turns)-1]
			fmt.Printf("\r%s: %s\n", last.Speaker, last.Text)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vox: %v\n", err)
		return 1
	}

	fmt.Printf("vox: connecting to %s (voice %s)\n", cfg.ServerURL, cfg.Voice)
	fmt.Println("Speak naturally. Commands: r=restart, t=transcript, q=quit")

	if err := ctrl.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vox: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
			ctrl.Stop()
			return 0
		case line, ok := <-lines:
			if !ok {
				ctrl.Stop()
				return 0
			}
			switch strings.ToLower(line) {
			case "":
			case "q":
				ctrl.Stop()
				return 0
			case "r":
				if err := ctrl.Start(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "vox: restart: %v\n", err)
				}
			case "t":
				printTranscript(ctrl.Transcript())
			default:
				fmt.Println("commands: r=restart, t=transcript, q=quit")
			}
		}
	}
}

func printTranscript(turns []transcript.Turn) {
	if len(turns) == 0 {
		fmt.Println("(no conversation yet)")
		return
	}
	for _, turn := range turns {
		fmt.Printf("%s: %s\n", turn.Speaker, turn.Text)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
