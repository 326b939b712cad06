// ABOUTME: Entry point for the dm-relay server
// ABOUTME: Binds identities to live connections and relays private messages

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/2389/dm-relay/internal/api"
	"github.com/2389/dm-relay/internal/auth"
	"github.com/2389/dm-relay/internal/config"
	"github.com/2389/dm-relay/internal/relay"
	"github.com/2389/dm-relay/internal/store"
	"github.com/2389/dm-relay/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                     _
  __| |_ __ ___    _ __ __| | __ _ _   _
 / _' | '_ ' _ \  | '__/ _' |/ _' | | | |
| (_| | | | | | | | | |  __/| (_| | |_| |
 \__,_|_| |_| |_| |_|  \___| \__,_|\__, |
                                   |___/
`

// getConfigPath returns the path to the relay config file.
// Priority: DM_RELAY_CONFIG env var > XDG_CONFIG_HOME/dm-relay/relay.yaml > ~/.config/dm-relay/relay.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DM_RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "dm-relay", "relay.yaml")
}

// getDataPath returns the path to the relay data directory.
// Priority: XDG_DATA_HOME/dm-relay > ~/.local/share/dm-relay
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "dm-relay")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dm-relay <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the relay server")
		fmt.Println("  init     Create a new config file")
		fmt.Println("  health   Check relay health")
		os.Exit(1)
	}

	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// History store
	var st store.Store
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		st, err = store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
	case config.DriverMemory:
		logger.Warn("using in-memory store, history is lost on restart")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	// Core relay wiring: each server owns its own registry/router pair.
	resolver := auth.NewJWTResolver([]byte(cfg.Auth.JWTSecret))
	registry := relay.NewRegistry(logger)
	router := relay.NewRouter(registry, st, cfg.Storage.AppendTimeout, logger)

	mux := chi.NewRouter()
	transport.NewHandler(registry, router, resolver, logger).Register(mux)
	api.NewHandler(st, resolver, logger).Register(mux)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", cfg.Server.HTTPAddr, "driver", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runInit writes a default config file with a freshly generated JWT secret.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	secret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}

	content := fmt.Sprintf(`server:
  http_addr: ":10000"

storage:
  driver: sqlite
  path: %s
  append_timeout: 5s

auth:
  jwt_secret: %s

logging:
  level: info
  format: text
`, filepath.Join(getDataPath(), "relay.db"), secret)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Config written to %s\n", configPath)
	return nil
}

// runHealth checks the /healthz endpoint of a running relay.
func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if addr[0] == ':' {
		addr = "localhost" + addr
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+addr+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var status map[string]string
	if err := json.Unmarshal(body, &status); err != nil || resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay unhealthy: status %d", resp.StatusCode)
	}

	color.New(color.FgGreen).Printf("relay healthy: %s\n", status["status"])
	return nil
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// randomSecret returns an URL-safe random string for JWT signing.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
