package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/neardup/server"
)

// NewServeCmd creates the HTTP server command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection API and websocket progress stream",
		Long: `Serve starts an HTTP server that evaluates documents and URLs on demand.
Results are stored in postgres when database.url is configured.`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var resultStore server.ResultStore
	if cfg.Database.URL != "" {
		s, err := openStore(ctx, cfg, c.engine, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		resultStore = s
	}

	srv := server.New(c.pipeline, c.engine, resultStore, logger, server.Options{Addr: cfg.Server.Addr})
	return srv.Start(ctx)
}
