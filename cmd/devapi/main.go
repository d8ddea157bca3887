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

	"gapper-terminal/src/devapi"
	"gapper-terminal/src/logger"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"
)

// Standalone dev backend serving cards, actions, top gappers and the event stream.
func main() {
	host := flag.String("host", "127.0.0.1", "listen host")
	port := flag.IntP("port", "p", 8700, "listen port")
	interval := flag.Duration("interval", 2*time.Second, "simulated update interval (0 disables)")
	top := flag.Int("top", 3, "leaders tracked for entered/left gapper events")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	if *debug {
		logger.SetLevel(logger.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log := logger.NewLogger(nil, "DevAPI")

	store := devapi.NewStore()
	store.Seed(time.Now())
	srv := devapi.NewServer(store, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *interval > 0 {
		go srv.Simulate(ctx, *interval, *top)
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("Dev backend listening on http://%s (%d cards)", addr, len(store.Tickers()))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Dev backend failed: %v", err)
		os.Exit(1)
	}
}
