// cmd/indsvc serves indicator computation over HTTP and websocket.
//
// Configuration comes from the environment (and .env); set CONFIG_FILE to
// overlay a YAML file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quantlab/config"
	"quantlab/internal/indengine"
	"quantlab/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[indsvc] config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Printf("[indsvc] %v, using info", err)
	}
	logger.Init("indsvc", level)

	svc, err := indengine.New(indengine.ConfigFrom(cfg))
	if err != nil {
		log.Fatalf("[indsvc] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[indsvc] fatal: %v", err)
	}
}
