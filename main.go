package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vrsandeep/mango-runner/internal/api"
	"github.com/vrsandeep/mango-runner/internal/core"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Fatal error during application setup")
	}
	defer app.Close()
	logger := app.Logger()

	// Load runners, start the bundle watcher and the update scheduler
	if err := app.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Could not start runner host")
	}

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// --- Graceful Shutdown ---
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting web server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Could not start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exiting.")
}
