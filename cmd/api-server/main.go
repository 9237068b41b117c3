package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/spf13/cobra"

	"mangarelay/internal/grpcserver"
	"mangarelay/internal/logging"
	"mangarelay/internal/manga"
	"mangarelay/internal/mangadex"
	"mangarelay/internal/relay"
	"mangarelay/internal/server"
	"mangarelay/pkg/utils"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "api-server",
	Short:        "Read-only MangaDex aggregation API with an image relay",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := utils.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *utils.Config) error {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	log := logging.Logger()
	gin.SetMode(gin.ReleaseMode)

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcSrv = grpcserver.NewServer()
	}

	upOpts := server.UpstreamOptions(cfg.Upstream)
	if grpcSrv != nil {
		upOpts.OnStateChange = func(_, to gobreaker.State) { grpcSrv.SetUpstreamState(to) }
	}
	client := mangadex.New(upOpts)

	svc := manga.NewService(client, server.NewNormalizer(cfg),
		server.ServiceOptions(cfg.Aggregator, cfg.Upstream.TranslatedLanguages))

	httpSrv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(cfg.Server, server.Deps{
			Manga:    svc,
			Relay:    relay.New(server.RelayOptions(cfg.Relay)),
			Upstream: client,
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if grpcSrv != nil {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", httpSrv.Addr).Str("upstream", cfg.Upstream.BaseURL).Msg("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server error")
	}

	log.Info().Msg("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	wg.Wait()
	log.Info().Msg("servers stopped")
	return runErr
}
