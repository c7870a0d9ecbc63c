package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/deepface"
	"github.com/example/face-verify/internal/faceverifier"
	"github.com/example/face-verify/internal/grpcclient"
	"github.com/example/face-verify/internal/handlers"
	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	verifier, closer, err := newVerifier(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to set up face verifier", zap.Error(err), zap.String("backend", cfg.Backend))
	}
	defer closer.Close()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	uc := usecase.NewVerificationUseCase(verifier, cfg.MaxImagePixels, logger)
	router := handlers.NewRouter(handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
	}, uc, logger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face verification API listening", zap.String("addr", cfg.Addr()), zap.String("backend", cfg.Backend))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newVerifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (faceverifier.Verifier, io.Closer, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendDeepFace:
		client := deepface.NewClient(deepface.ConfigFrom(cfg.DeepFace), logger)
		return client, nopCloser{}, nil
	case config.BackendGRPC:
		client, conn, err := grpcclient.DialFaceVerifier(ctx, cfg.GRPC.Addr, cfg.GRPC.DialTimeout, cfg.GRPC.CallTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown verifier backend %q", cfg.Backend)
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
