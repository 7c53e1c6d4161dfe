package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parkpal/tagchat/backend/internal/config"
	"github.com/parkpal/tagchat/backend/internal/handler"
	vehicleModel "github.com/parkpal/tagchat/backend/internal/model/vehicle"
	chatservice "github.com/parkpal/tagchat/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	vehicles := newVehicleRegistry(cfg.Chat.VehicleRefs)

	chatSvc := chatservice.NewService()
	chatSvc.StartSweeper(ctx, cfg.Chat.SweepInterval)

	router := handler.NewRouter(vehicles, chatSvc)

	startServer(ctx, cfg.Server, router)
}

// newVehicleRegistry pins the known tag set when one is configured;
// otherwise refs are trusted as pre-validated by the upstream registry.
func newVehicleRegistry(refs []string) vehicleModel.Registry {
	if len(refs) == 0 {
		log.Println("no VEHICLE_REFS configured, accepting any vehicle ref")
		return vehicleModel.OpenRegistry{}
	}
	items := make([]vehicleModel.Vehicle, 0, len(refs))
	for _, ref := range refs {
		items = append(items, vehicleModel.Vehicle{Ref: ref})
	}
	log.Printf("vehicle registry seeded with %d ref(s)", len(items))
	return vehicleModel.NewMemoryStore(items)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("tagchat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
