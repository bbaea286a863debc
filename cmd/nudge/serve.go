package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nudge/internal/delivery/server"
	"nudge/internal/infra/reminderstore"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg, true)
			if err != nil {
				return err
			}
			defer rt.close()
			if rt.lock, err = reminderstore.AcquireLock(rt.store.Dir(), cfg.HTTP.Addr); err != nil {
				return fmt.Errorf("claim reminder store: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	registered, err := registerUsers(rt)
	if err != nil {
		return err
	}
	rt.logger.Info("Serve: %d users registered, channels %v", registered, rt.router.Channels())

	g, gctx := errgroup.WithContext(ctx)
	if err := rt.engine.Start(gctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	g.Go(func() error {
		<-rt.engine.Done()
		return nil
	})

	if rt.cfg.HTTP.Addr != "" {
		srv := server.New(server.Config{
			Addr:           rt.cfg.HTTP.Addr,
			AllowedOrigins: rt.cfg.HTTP.AllowedOrigins,
		}, rt.engine,
			server.WithLogger(rt.logger),
			server.WithMetrics(rt.metrics.Handler(), rt.metrics),
		)
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
	}

	err = g.Wait()
	rt.engine.Stop()
	return err
}

// registerUsers activates users with stored reminders, users named in the
// config and users with an explicit route.
func registerUsers(rt *runtime) (int, error) {
	stored, err := rt.store.ListUserIDs()
	if err != nil {
		return 0, fmt.Errorf("list stored users: %w", err)
	}
	candidates := append([]string{}, stored...)
	candidates = append(candidates, rt.cfg.Users...)
	for userID := range rt.cfg.Delivery.Routes {
		candidates = append(candidates, userID)
	}
	for _, userID := range candidates {
		if err := rt.engine.RegisterUser(userID); err != nil {
			rt.logger.Warn("Serve: skipping user %q: %v", userID, err)
		}
	}
	return len(rt.engine.RegisteredUsers()), nil
}
