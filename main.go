package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pathpatrol/config"
	"pathpatrol/internal/app"
	"pathpatrol/internal/handler"
	"pathpatrol/internal/obs"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig("config/config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if _, err := a.AuthService.EnsureDefaultAdmin(context.Background(), cfg.Admin); err != nil {
		a.Close()
		log.Fatalf("Failed to create default admin: %v", err)
	}

	if err := a.StartNotifications(); err != nil {
		a.Close()
		log.Fatalf("Failed to start notifications: %v", err)
	}
	defer a.Close()

	obs.Init()

	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(handler.RouterConfig{
		AuthService:      a.AuthService,
		ComplaintService: a.ComplaintService,
		Geocoder:         a.Geocoder,
		MaxUploadBytes:   cfg.Media.MaxUploadBytes,
		GeocodeRate:      cfg.Geocode.RequestsPerSecond,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Pothole complaint portal starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		log.Printf("Failed to start server: %v", err)
		return
	case <-quit:
	}
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}
