package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/qumn/echat/internal/auth"
	"github.com/qumn/echat/internal/logger"
	"github.com/qumn/echat/internal/server"
	"github.com/qumn/echat/internal/store"
)

func main() {
	cfg := server.NewConfigFromEnv()
	logger.Init(cfg.Debug)
	log := logger.New("main")

	messages, err := store.Open(cfg.MySQLDSN)
	if err != nil {
		log.Error("connecting to message store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = messages.Close() }()

	provider := auth.NewJWTProvider(cfg.JWTSecret)
	gateway := server.NewGateway(*cfg, messages, provider, logger.New("gateway"))

	httpServer := server.CreateServer(cfg.Port, gateway.SetupRoutes())

	errc := make(chan error, 1)
	go func() {
		errc <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("received signal", "signal", sig.String())
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := gateway.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("gateway shutdown incomplete", "error", err)
	}
}
