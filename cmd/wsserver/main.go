package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/driftchat/chat-server/internal/config"
	"github.com/driftchat/chat-server/internal/hub"
	"github.com/driftchat/chat-server/internal/metrics"
	"github.com/driftchat/chat-server/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Printf("driftchat WebSocket server starting")
	log.Printf("  listen_addr:        %s", cfg.ListenAddr)
	log.Printf("  metrics_addr:       %s", cfg.MetricsAddr)
	log.Printf("  worker_pool:        %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections:    %d", cfg.MaxConnections)
	log.Printf("  read_timeout:       %s", cfg.ReadTimeout)
	log.Printf("  write_timeout:      %s", cfg.WriteTimeout)
	log.Printf("  heartbeat_interval: %s", cfg.HeartbeatInterval)
	log.Printf("  heartbeat_timeout:  %s", cfg.HeartbeatTimeout)

	h := hub.New()

	server := ws.NewServer(ws.ServerConfig{
		ListenAddr:        cfg.ListenAddr,
		WorkerPoolSize:    cfg.WorkerPoolSize,
		MaxConnections:    cfg.MaxConnections,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
	}, func(conn *ws.Connection, data []byte) {
		h.Dispatch(conn.ID, data)
	})
	server.SetOnDisconnect(h.HandleDisconnect)
	h.SetSender(server)

	// Prometheus metrics on a separate listener so the public port exposes
	// only /ws and /health.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
