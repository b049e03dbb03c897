// Command gateway runs the fuzzing platform control plane: the HTTP API,
// the broker consume loop, and the background sweepers live in one process
// and shut down together.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fuzzbed/gateway/api"
	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/auth"
	"github.com/fuzzbed/gateway/client"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/config"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
	"github.com/fuzzbed/gateway/reconcile"
	"github.com/fuzzbed/gateway/storage"
)

// eraserInterval paces the trash-bin sweep; drainInterval paces the retry
// loop for parked broker messages.
const (
	eraserInterval = time.Minute
	drainInterval  = 30 * time.Second
)

func main() {
	cfgFile := flag.String("config", "", "path to configuration file")
	flag.Parse()

	if err := run(*cfgFile); err != nil {
		common.Logger.WithError(err).Error("gateway exited with error")
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	common.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := db.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer svc.Close()
	if err := svc.EnsureIndexes(ctx); err != nil {
		return err
	}
	store := db.NewStore(svc)

	objects, err := storage.NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}

	broker, err := queue.NewBroker(cfg.Broker)
	if err != nil {
		return err
	}
	defer broker.Close()
	outbox := queue.NewOutbox(broker, reconcile.NewParkedSink(store.Unsent))

	if err := bootstrapUsers(ctx, store, cfg.Bootstrap); err != nil {
		return err
	}

	sessions := auth.NewSessions(store.Users, store.Sessions, cfg.Cookie.Expiration)
	csrf := auth.NewCSRF(cfg.CSRF.SecretKey, cfg.CSRF.TokenExp)
	protector := auth.NewProtector(cfg.Bruteforce.SecretKey, cfg.Bruteforce.MaxFailedLogins, cfg.Bruteforce.LockoutPeriod, store.Lockouts)
	pools := client.NewPoolManager(cfg.Services.PoolManagerURL, cfg.Services.Timeout)

	dispatcher := reconcile.NewDispatcher(store, outbox, cfg.Broker)
	go func() {
		if err := broker.Consume(ctx, cfg.Broker.ConsumerWorkers, dispatcher.Handle); err != nil {
			common.Logger.WithError(err).Error("consume loop stopped")
			stop()
		}
	}()
	go protector.Sweep(ctx, cfg.Bruteforce.CleanupInterval)
	go reconcile.NewEraser(store, objects, eraserInterval).Run(ctx)
	go reconcile.NewDrainer(store.Unsent, broker, drainInterval).Run(ctx)

	server := api.NewServer(cfg, store, objects, sessions, csrf, protector, pools, outbox)
	if cfg.Platform.Environment != "prod" {
		server.WithResetter(svc)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	common.Logger.WithField("port", cfg.Server.Port).Info("gateway started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	common.Logger.Info("gateway stopped")
	return nil
}

// bootstrapUsers seeds the root system administrator and the default client
// account on first start. Existing accounts are left untouched.
func bootstrapUsers(ctx context.Context, store *db.Store, cfg config.BootstrapConfig) error {
	seeds := []struct {
		name     string
		password string
		admin    bool
	}{
		{cfg.RootUsername, cfg.RootPassword, true},
		{cfg.DefaultUsername, cfg.DefaultPassword, false},
	}
	for _, seed := range seeds {
		if seed.name == "" || seed.password == "" {
			continue
		}
		_, err := store.Users.GetByName(ctx, seed.name, model.RemovalAll)
		if err == nil {
			continue
		}
		if !apierr.IsCode(err, apierr.ErrUserNotFound.Code) {
			return err
		}
		hash, err := auth.HashPassword(seed.password)
		if err != nil {
			return err
		}
		user := &model.User{
			Name:         seed.name,
			DisplayName:  seed.name,
			PasswordHash: hash,
			IsConfirmed:  true,
			IsAdmin:      seed.admin,
			IsSystem:     true,
			Created:      common.FormatTime(time.Now().UTC()),
		}
		if err := store.Users.Create(ctx, user); err != nil {
			return err
		}
		common.Logger.WithField("user", user.Name).Info("seeded bootstrap user")
	}
	return nil
}
