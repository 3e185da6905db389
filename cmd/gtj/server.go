package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/gtjio/gtj/internal/acceptance"
	"github.com/gtjio/gtj/internal/ai"
	"github.com/gtjio/gtj/internal/api"
	"github.com/gtjio/gtj/internal/billing"
	"github.com/gtjio/gtj/internal/config"
	"github.com/gtjio/gtj/internal/events"
	"github.com/gtjio/gtj/internal/mail"
	"github.com/gtjio/gtj/internal/proposal"
	"github.com/gtjio/gtj/internal/ratelimit"
	"github.com/gtjio/gtj/internal/render"
	"github.com/gtjio/gtj/internal/storage"
	"github.com/gtjio/gtj/internal/token"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gtj server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		debug, _ := cmd.Flags().GetBool("debug")
		return runServer(withMCP, debug)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running gtj server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gtj server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
	startCmd.Flags().Bool("debug", false, "enable debug logging")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "gtj.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP, debug bool) error {
	fmt.Fprintf(os.Stderr, "gtj version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Check for a running instance via the health endpoint before taking
	// over the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("gtj is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("gtj is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	codec, err := token.NewCodec(cfg.Auth.SecretKey)
	if err != nil {
		return fmt.Errorf("initializing token codec: %w", err)
	}

	pages, err := render.NewPages()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	sink := events.NewSlogSink(slog.Default())

	var completer proposal.Completer
	if cfg.AI.APIKey != "" {
		client := ai.NewClient(cfg.AI.APIKey)
		client.SetModel(cfg.AI.Model)
		completer = client
	} else {
		slog.Warn("OPENAI_API_KEY not set; proposals will use the deterministic template")
	}
	generator := proposal.New(store, completer, sink, cfg.Limits.CacheEvictAge)

	limiter := ratelimit.NewSlidingWindow(cfg.Limits.RateWindow, cfg.Limits.RateCeiling)
	go func() {
		ticker := time.NewTicker(cfg.Limits.RateWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	deps := api.Deps{
		Store:          store,
		Generator:      generator,
		Accept:         acceptance.NewService(store),
		Limiter:        limiter,
		Codec:          codec,
		Pages:          pages,
		Events:         sink,
		BaseURL:        strings.TrimRight(cfg.Server.BaseURL, "/"),
		FreeLimit:      cfg.Limits.FreeLimit,
		AcceptTokenTTL: cfg.Limits.AcceptTokenTTL,
		PriceID:        cfg.Billing.PriceID,
	}
	if cfg.Billing.APIKey != "" {
		deps.Billing = billing.NewClient(cfg.Billing.APIKey)
	}
	if cfg.Mail.APIKey != "" {
		deps.Mail = mail.NewClient(cfg.Mail.APIKey, cfg.Mail.From)
	}

	handler := api.NewHandler(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Generator: generator})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "gtj listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("gtj is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop gtj (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to gtj (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := healthClient.Get(healthURL)
	if err != nil {
		printStatus("Server", "not running")
		return nil
	}
	resp.Body.Close()

	printStatus("Server", "running on port %d", cfg.Server.Port)
	if pid, err := readPIDFile(pidFilePath(cfg.Storage.DataDir)); err == nil {
		printStatus("PID", "%d", pid)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
