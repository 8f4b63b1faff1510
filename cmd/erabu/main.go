// Package main is the Erabu CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/config"
	"github.com/hayate/erabu/internal/models"
	"github.com/hayate/erabu/internal/neighbor"
	"github.com/hayate/erabu/internal/server"
	"github.com/hayate/erabu/internal/session"
	"github.com/hayate/erabu/internal/store"
	"github.com/hayate/erabu/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/erabu/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "erabu server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "status":
		runStatus()
	case "reload":
		runReload()
	case "version", "--version", "-v":
		fmt.Printf("erabu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (request detail, session operations, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if cfg.Neighbor.Reload.Enabled {
		monitor := neighbor.NewMonitor(components.Index, neighbor.MonitorOptions{
			PollInterval: cfg.Neighbor.Reload.PollInterval(),
			SettleWindow: cfg.Neighbor.Reload.SettleWindow(),
			SignalPath:   cfg.Neighbor.Reload.SignalPath,
		}, logger)
		go monitor.Run(bgCtx)
	}
	go components.Manager.RunSweeper(bgCtx)

	srv := server.NewServer(
		components.Manager,
		components.Index,
		components.Store,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Descriptors int64              `json:"descriptors"`
	Dimensions  int                `json:"dimensions"`
	Sessions    int                `json:"sessions"`
	Index       models.IndexStatus `json:"index"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("descriptors:    %d   # count of stored descriptor vectors\n", status.Descriptors)
		fmt.Printf("dimensions:     %d   # vector dimensionality\n", status.Dimensions)
		fmt.Printf("sessions:       %d   # known refinement sessions\n", status.Sessions)
		fmt.Println()
		fmt.Println("# neighbor index")
		fmt.Printf("version:        %d\n", status.Index.Version)
		fmt.Printf("size:           %d\n", status.Index.Size)
		fmt.Printf("rebuilds:       %d\n", status.Index.Rebuilds)
		if !status.Index.LastBuildTime.IsZero() {
			fmt.Printf("last_build:     %s\n", status.Index.LastBuildTime.Format(time.RFC3339))
		}
		if status.Index.LastError != "" {
			fmt.Printf("last_error:     %s\n", status.Index.LastError)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runReload() {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Post(*serverURL+"/api/v1/index/reload", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Reload failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Println("Index reload requested")
}

// Components holds initialized services.
type Components struct {
	Store   store.DescriptorStore
	Index   *neighbor.Index
	Manager *session.Manager
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	st, err := store.New(cfg.Store.Backend, store.Options{
		DatabasePath: cfg.Store.DatabasePath,
		ReadOnly:     cfg.Store.ReadOnlyOrDefault(),
		BatchSize:    cfg.Store.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize descriptor store: %w", err)
	}
	if cfg.Store.CacheTTLSeconds > 0 {
		st = store.NewCachedStore(st, time.Duration(cfg.Store.CacheTTLSeconds)*time.Second)
		logger.Info("descriptor read cache enabled", zap.Int("ttl_seconds", cfg.Store.CacheTTLSeconds))
	}

	ix, err := neighbor.New(st, neighbor.Options{
		Metric:         neighbor.Metric(cfg.Neighbor.DistanceMetric),
		BitLength:      cfg.Neighbor.BitLength,
		RandomSeed:     cfg.Neighbor.RandomSeed,
		UseBucketTable: cfg.Neighbor.UseBucketTableOrDefault(),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize neighbor index: %w", err)
	}

	// Build the first snapshot up front. Failure is not fatal: the index
	// serves 503 until a rebuild succeeds, and the reload monitor retries.
	buildCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := ix.Build(buildCtx); err != nil {
		logger.Warn("initial index build failed, serving unavailable until rebuild", zap.Error(err))
		ix.RequestReload()
	} else {
		logger.Info("neighbor index built",
			zap.Uint64("version", ix.Version()),
			zap.Int("descriptors", ix.Status().Size),
		)
	}

	manager := session.NewManager(st, ix, cfg, logger)

	return &Components{
		Store:   st,
		Index:   ix,
		Manager: manager,
	}, nil
}

func printUsage() {
	fmt.Println(`erabu - Interactive query refinement service

Usage:
  erabu server [flags]     Start the HTTP server
  erabu status [flags]     Show store/index/session status
  erabu reload [flags]     Request a neighbor index rebuild
  erabu version            Show version
  erabu help               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/erabu/config.yaml)
  --debug            Enable debug logging (request detail, session operations, etc.)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Reload Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  erabu server
  erabu server --config ./config.yaml --debug
  erabu status
  erabu status --output json
  erabu reload`)
}
