package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/backplane"
	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/realtime"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
)

func main() {
	log.Println("Starting roomchat server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	ctx := context.Background()
	bp, err := backplane.New(ctx, cfg.Backplane)
	if err != nil {
		log.Printf("Backplane %q unavailable, running in single-instance mode: %v", cfg.Backplane.Driver, err)
		bp = realtime.NoopBackplane{}
	}

	service := realtime.NewService(db, realtime.Options{Backplane: bp, InstanceID: cfg.InstanceID})
	service.Start(ctx)

	accounts := auth.NewAccounts(db, auth.NewPasswordHasher(cfg.Auth.BcryptCost), auth.NewTokenManager(cfg.Auth))

	srv := server.New(cfg.Server, server.Deps{Service: service, Accounts: accounts, Store: db})
	srv.StartHub()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Stop accepting requests first, then close sockets so every
	// disconnect is processed before the realtime core and the database go away.
	wait := gfshutdown.GracefulShutdown(
		ctx,
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(context.Context) error {
				log.Println("Graceful shutdown initiated...")
				errs := []error{
					srv.Shutdown(cfg.ShutdownTimeout),
					service.Shutdown(),
					db.Close(),
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
