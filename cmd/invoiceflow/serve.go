package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/invoiceflow/invoiceflow/pkg/config"
	"github.com/invoiceflow/invoiceflow/pkg/engine"
	"github.com/invoiceflow/invoiceflow/pkg/extract"
	"github.com/invoiceflow/invoiceflow/pkg/notify"
	"github.com/invoiceflow/invoiceflow/pkg/report"
	"github.com/invoiceflow/invoiceflow/pkg/server"
	"github.com/invoiceflow/invoiceflow/pkg/telemetry"
	"github.com/invoiceflow/invoiceflow/pkg/watch"
)

var (
	servePort  int
	serveHost  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake server",
	Long: `Start the HTTP intake server.

The server provides:
  - Event intake for invoice workbooks and customer text
  - Default place management
  - Report download and reset
  - A notification queue per user

Examples:
  invoiceflow serve                  # Start on default port (8080)
  invoiceflow serve --port 3000      # Start on custom port
  invoiceflow serve --watch          # Also watch the inbox directory`,
	RunE: runServe,
}

func init() {
	cfg := config.Global().Get()

	serveCmd.Flags().IntVarP(&servePort, "port", "p", cfg.Server.Port, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", cfg.Server.Host, "Host to bind to")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", cfg.Watch.Enabled, "Watch the inbox directory for files")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	// Optional tracing
	var engineOpts []engine.Option
	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig("invoiceflow")
		otlpCfg.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		}
		tracer, shutdown, err := telemetry.InitOTLP(otlpCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	// Collaborators
	sink, err := report.NewXLSXReport(cfg.Reports.Dir)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	places, err := newPlaceStore(cfg)
	if err != nil {
		return err
	}
	defer places.Close()
	notices := notify.NewQueueNotifier(0)

	eng := engine.New(
		engine.Config{
			Debounce: cfg.Engine.Debounce,
			BurstTTL: cfg.Engine.BurstTTL,
		},
		extract.NewXLSXExtractor(),
		sink, places, notices,
		engineOpts...,
	)

	srv, err := server.NewServer(eng, sink, places, notices, cfg.Engine.TempDir, parseSize(cfg.Server.MaxUploadSize))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	url := fmt.Sprintf("http://%s:%d", serveHost, servePort)
	if serveHost == "0.0.0.0" || serveHost == "" {
		url = fmt.Sprintf("http://localhost:%d", servePort)
	}

	fmt.Println()
	fmt.Println("  ╭─────────────────────────────────────╮")
	fmt.Println("  │        INVOICEFLOW SERVER           │")
	fmt.Println("  ├─────────────────────────────────────┤")
	fmt.Printf("  │  Local:   %-25s │\n", url)
	if serveWatch {
		fmt.Printf("  │  Inbox:   %-25s │\n", cfg.Watch.Dir)
	}
	fmt.Println("  │                                     │")
	fmt.Println("  │  Press Ctrl+C to stop               │")
	fmt.Println("  ╰─────────────────────────────────────╯")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if serveWatch {
		watcher, err := watch.NewWatcher(eng, cfg.Watch.Dir, cfg.Watch.User)
		if err != nil {
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
		g.Go(func() error {
			defer watcher.Close()
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// parseSize parses sizes like "50MB" into bytes. Unknown input falls back
// to 50MB.
func parseSize(v string) int64 {
	var n int64
	var unit string
	if _, err := fmt.Sscanf(v, "%d%s", &n, &unit); err != nil {
		return 50 << 20
	}
	switch unit {
	case "KB", "kb":
		return n << 10
	case "MB", "mb":
		return n << 20
	case "GB", "gb":
		return n << 30
	default:
		return n
	}
}
