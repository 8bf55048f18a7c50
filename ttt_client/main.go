package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/iselt/ttt-udp/common"
	"github.com/iselt/ttt-udp/ttt_client/internal/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile  string
	serverHost  string
	serverPort  int
	clientStart bool
	logLevel    string

	rootCmd = &cobra.Command{
		Use:          "ttt-client",
		Short:        "Plays tic-tac-toe against a ttt-server over UDP.",
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "Config file path (TOML)")
	rootCmd.Flags().StringVarP(&serverHost, "server", "s", "", "Server IP address or host name")
	rootCmd.Flags().IntVarP(&serverPort, "port", "p", common.DefaultServerPort, "Server UDP port")
	rootCmd.Flags().BoolVarP(&clientStart, "clientStart", "c", false, "Use this if the client moves first")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level, overrides the config file")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := common.LoadClientConfig(configFile)
	if err != nil {
		return err
	}
	if serverHost != "" {
		cfg.ServerAddr = net.JoinHostPort(serverHost, strconv.Itoa(serverPort))
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

	server, err := common.ResolveAddrPort(cfg.ServerAddr)
	if err != nil {
		return err
	}
	endpoint, err := common.ListenEndpoint(cfg.LocalAddr, cfg.Timing.ReceiveTimeout, logger.Named("endpoint"))
	if err != nil {
		logger.Error("Failed to create socket", zap.Error(err))
		return err
	}

	metrics := client.NewMetrics()
	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.ListenAddr, metrics, logger.Named("metrics"))
	}

	c := client.New(cfg, endpoint, server, logger.Named("client"), metrics)
	c.Start(ctx)
	defer c.Close()

	logger.Debug("Starting game", zap.Stringer("server", server), zap.Bool("client_first", clientStart))
	status, err := client.NewGame(c, clientStart, os.Stdin, os.Stdout, logger.Named("game")).Play(ctx)
	switch {
	case common.IsUnavailable(err):
		fmt.Fprintln(os.Stderr, "Server unavailable.")
		return err
	case errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return err
	}
	logger.Debug("Game over", zap.Stringer("status", status))
	return nil
}

// serveMetrics exposes the client metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, metrics *client.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := common.ServeHTTP(ctx, srv, logger); err != nil {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
