package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/iselt/ttt-udp/common"
	"github.com/iselt/ttt-udp/common/game"
	"github.com/iselt/ttt-udp/ttt_server/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	listenAddr string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:          "ttt-server",
		Short:        "Serves tic-tac-toe games over UDP.",
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path (TOML)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "UDP listen address, overrides the config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level, overrides the config file")
}

func run(cmd *cobra.Command, _ []string) error {
	if os.Getenv("PERF_PROFILE") != "" {
		f, err := os.Create("cpu.pprof")
		if err == nil {
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err == nil {
				defer pprof.StopCPUProfile()
			}
		}
	}

	cfg, err := common.LoadServerConfig(configFile)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := common.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint, err := common.ListenEndpoint(cfg.ListenAddr, cfg.Timing.ReceiveTimeout, logger.Named("endpoint"))
	if err != nil {
		logger.Error("Failed to bind game socket", zap.String("listen_addr", cfg.ListenAddr), zap.Error(err))
		return err
	}

	srv, err := server.New(cfg, endpoint, game.NewHandler(nil), logger)
	if err != nil {
		endpoint.Close()
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
