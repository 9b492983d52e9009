package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"meshgate/internal/internet_bridge"
	"meshgate/internal/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	addr := flag.String("addr", ":5069", "listen address")
	timeout := flag.Duration("timeout", 10*time.Second, "time to wait for a gateway response")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	utils.InitLogging(*logLevel, true)
	log := utils.Logger("relay")
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := internet_bridge.NewRelay(*timeout)
	srv := &http.Server{Addr: *addr, Handler: relay.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Msg("Public relay running")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("relay stopped")
	}
}
