package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/segflow/internal/api"
	"github.com/ignite/segflow/internal/config"
	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/sandbox"
	"github.com/ignite/segflow/internal/service"
)

// checkPortAvailable verifies that the target port is not already in
// use, so a stale process is caught before the engine starts claiming
// work.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := os.Getenv("SEGFLOW_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	pool, err := db.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(ctx, pool); err != nil {
		cancel()
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	cancel()

	sb := sandbox.New()
	svc := service.New(pool, sb)

	executor := execution.NewExecutor(pool, sb, cfg.Executor.TickInterval())
	executor.Start()

	server := api.NewServer(svc, executor, cfg.Auth.APIKey)
	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Segflow engine listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		log.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	executor.Stop()
	log.Println("Shutdown complete")
}
