package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orrn/printpipe/internal/api"
	"github.com/orrn/printpipe/internal/config"
	"github.com/orrn/printpipe/internal/logging"
)

type serveOptions struct {
	configPath string
	port       int
	outputDir  string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP print server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "printpipe.yaml", "Path to the YAML config file")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&opts.outputDir, "out", "", "Directory for printed files (overrides config)")
	return cmd
}

func loadConfig(opts *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(parent context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := api.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return srv.WatchPrinter(gctx)
	})

	return g.Wait()
}
