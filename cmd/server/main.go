package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/api"
	"github.com/MimoJanra/SSOPulse/internal/auth"
	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/diag"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if missing := cfg.MissingKeys(); len(missing) > 0 {
		log.Warnf("Missing configuration keys: %v", missing)
	}

	runner := diag.NewRunner(cfg, log)
	authMgr := auth.NewManager(cfg, log)
	server := api.NewServer(cfg, log, runner, authMgr)

	r := api.SetupRouter(server)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Infof("Server started on %s, target identity service %s", cfg.ListenAddr, cfg.BaseURL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-sigChan
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
	log.Info("Server stopped")
}
