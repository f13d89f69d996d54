package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashgate.org/internal/account"
	"dashgate.org/internal/directory"
	"dashgate.org/internal/httpapi"
	"dashgate.org/internal/obs"
	"dashgate.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("DASHGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("DASHGATE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	svc, err := directory.NewService(store)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	guard, err := account.NewGuard(store)
	if err != nil {
		log.Fatalf("account guard: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Service:     svc,
		Guard:       guard,
		Store:       store,
		Ready:       httpapi.ReadyProbe{DB: store.DB()},
		Version:     version,
		EmbedOrigin: os.Getenv("DASHGATE_EMBED_ORIGIN"),
	})

	addr := os.Getenv("DASHGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dashgate-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
