package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pysugar/vertex-nexus/internal/auth/credentials"
	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/config"
	"github.com/pysugar/vertex-nexus/internal/daemon"
	"github.com/pysugar/vertex-nexus/internal/discovery"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy"
	"github.com/pysugar/vertex-nexus/internal/stats"
	"github.com/pysugar/vertex-nexus/internal/upstream"
	"github.com/pysugar/vertex-nexus/internal/version"
)

var (
	flagConfig  string
	flagPort    int
	flagProject string
)

func main() {
	root := &cobra.Command{
		Use:   "vertexnexus",
		Short: "OpenAI-compatible proxy in front of Google Vertex AI",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default ~/.vertex_proxy/config.yaml)")
	root.PersistentFlags().IntVarP(&flagPort, "port", "p", 0, "listen port (default 8000)")
	root.PersistentFlags().StringVar(&flagProject, "project", "", "Google Cloud project id")

	root.AddCommand(serveCmd(), startCmd(), stopCmd(), statusCmd(), regionsCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers flags over environment over the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagPort > 0 {
		cfg.Port = flagPort
	}
	if flagProject != "" {
		cfg.ProjectID = flagProject
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "❌ %v\n", err)
				os.Exit(1)
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	// Log to stderr and the rotating proxy.log together.
	if rw, err := logging.NewRotatingWriter(config.LogPath(), 0); err != nil {
		log.Printf("⚠️ Log file unavailable, stderr only: %v", err)
	} else {
		defer rw.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, rw))
	}

	catalog.Init(cfg.ModelAliases)

	if err := daemon.WritePID(config.PIDPath()); err != nil {
		log.Printf("⚠️ Could not write pid file: %v", err)
	}
	defer daemon.RemovePID(config.PIDPath())

	srv, err := proxy.New(cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("🔄 Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the proxy in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			childArgs := []string{"serve"}
			if flagConfig != "" {
				childArgs = append(childArgs, "--config", flagConfig)
			}
			if flagPort > 0 {
				childArgs = append(childArgs, "--port", strconv.Itoa(flagPort))
			}
			if flagProject != "" {
				childArgs = append(childArgs, "--project", flagProject)
			}

			pid, err := daemon.Start(config.PIDPath(), config.LogPath(), childArgs)
			if err != nil {
				return err
			}
			fmt.Printf("🚀 Proxy started (pid %d) on port %d\n", pid, cfg.Port)
			fmt.Printf("📦 Logs: %s\n", config.LogPath())
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := daemon.Stop(config.PIDPath())
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Println("Proxy is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("✅ Proxy stopped (pid %d)\n", pid)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the proxy is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, ok := daemon.Running(config.PIDPath())
			if !ok {
				fmt.Println("Proxy is not running")
				return nil
			}
			fmt.Printf("✅ Proxy running (pid %d)\n", pid)

			snap, err := stats.Load(config.StatsPath())
			if err != nil {
				return nil
			}
			fmt.Printf("   port:     %d\n", snap.Port)
			fmt.Printf("   uptime:   %s\n", time.Since(snap.StartTime).Round(time.Second))
			fmt.Printf("   requests: %d\n", snap.RequestCount)
			if !snap.LastRequestTime.IsZero() {
				fmt.Printf("   last:     %s ago\n", time.Since(snap.LastRequestTime).Round(time.Second))
			}
			return nil
		},
	}
}

func regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "Probe which regions serve each model and refresh the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			catalog.Init(cfg.ModelAliases)

			prober := &discovery.Prober{
				Client: upstream.NewClient(cfg.ProjectID, credentials.NewADCSource()),
				Cfg:    cfg,
			}
			result, err := prober.RunAndSave(cmd.Context(), config.RegionsCachePath())
			if err != nil {
				return err
			}
			for model, serving := range result {
				fmt.Printf("%-40s %v\n", model, serving)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vertexnexus %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		},
	}
}
