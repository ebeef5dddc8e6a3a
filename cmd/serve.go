package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/warpbridge/internal/bridgeapi"
	"github.com/nextlevelbuilder/warpbridge/internal/compatapi"
	"github.com/nextlevelbuilder/warpbridge/internal/config"
	"github.com/nextlevelbuilder/warpbridge/internal/creds"
	"github.com/nextlevelbuilder/warpbridge/internal/state"
	"github.com/nextlevelbuilder/warpbridge/internal/upstream"
	"github.com/nextlevelbuilder/warpbridge/internal/warpwire"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Bridge and Compat HTTP surfaces",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rt, err := warpwire.LoadDescriptors(cfg.Bridge.ProtoDir)
	if err != nil {
		slog.Error("failed to load protobuf descriptors", "error", err, "proto_dir", cfg.Bridge.ProtoDir)
		os.Exit(1)
	}

	credsMgr := creds.New(
		cfg.Credentials.EnvFilePath,
		cfg.Upstream.ClientVersion,
		cfg.Upstream.OSCategory,
		cfg.Upstream.OSName,
		cfg.Upstream.OSVersion,
	)
	upstreamClient := upstream.New(
		cfg.Upstream.URL,
		cfg.Upstream.ClientVersion,
		cfg.Upstream.OSCategory,
		cfg.Upstream.OSName,
		cfg.Upstream.OSVersion,
		credsMgr,
		cfg.Upstream.InsecureTLS,
	)

	bridgeSrv, err := bridgeapi.New(rt, credsMgr, upstreamClient)
	if err != nil {
		slog.Error("failed to build bridge server", "error", err)
		os.Exit(1)
	}

	compatSrv := compatapi.New(cfg.Compat, state.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	errCh := make(chan error, 2)
	bridgeHTTP := listenAndServe(ctx, "bridge", fmt.Sprintf("%s:%d", cfg.Bridge.Host, cfg.Bridge.Port), bridgeSrv.Mux(), errCh)
	compatHTTP := listenAndServe(ctx, "compat", fmt.Sprintf("%s:%d", cfg.Compat.Host, cfg.Compat.Port), compatSrv.Mux(), errCh)

	select {
	case err := <-errCh:
		slog.Error("http server exited", "error", err)
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	bridgeHTTP.Shutdown(shutdownCtx)
	compatHTTP.Shutdown(shutdownCtx)
}

// listenAndServe starts srv.Handler on addr in the background, stopping it
// when ctx is canceled. Errors other than ErrServerClosed are sent to errCh.
func listenAndServe(ctx context.Context, name, addr string, handler http.Handler, errCh chan<- error) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		slog.Info("http surface starting", "name", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
	return srv
}
