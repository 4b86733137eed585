// test-server は開発用のローカルシグナリングサーバー。
// SIGNALING_HOST=localhost WEBSOCKET_PORT=8080 で cmd/server から接続できる。
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

	"github.com/spf13/pflag"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

func main() {
	port := pflag.Int("port", 8080, "signaling port")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	logger.Init(*debug)
	defer logger.Sync()

	relay := NewRelay()
	mux := http.NewServeMux()
	mux.Handle("/ws", relay)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start signaling relay", zap.Error(err))
		}
	}()
	logger.Info("Signaling relay started", zap.String("url", fmt.Sprintf("ws://localhost:%d/ws", *port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown signaling relay", zap.Error(err))
	}
}
