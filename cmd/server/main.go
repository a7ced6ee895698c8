package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tashasho/social-media-posting-automator/internal/app"
	"github.com/tashasho/social-media-posting-automator/internal/config"
	"github.com/tashasho/social-media-posting-automator/internal/handler"
	"github.com/tashasho/social-media-posting-automator/internal/signature"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting draft approval server...")

	components, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	verifier := signature.NewVerifier(cfg.Slack.SigningSecret, logger)

	handlerOpts := []handler.Option{
		handler.WithMetrics(components.Metrics),
		handler.WithOpsSecret(cfg.Ops.JWTSecret),
		handler.WithPendingTTL(cfg.Drafts.PendingTTL),
	}
	if components.Audit != nil {
		handlerOpts = append(handlerOpts, handler.WithAudit(components.Audit))
	}
	apiHandler := handler.NewHandler(components.Store, components.Dispatcher, verifier, logger, handlerOpts...)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	apiHandler.RegisterRoutes(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server is running",
		zap.String("address", serverAddr),
		zap.String("pending_dir", cfg.Drafts.PendingDir),
		zap.Bool("signature_verification", verifier.Enabled()),
		zap.Bool("slack", components.Slack.Enabled()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
