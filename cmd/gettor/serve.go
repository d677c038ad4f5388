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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/gettor/internal/api"
	"github.com/kalambet/gettor/internal/model"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP intake and the fulfillment workers (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "gettor version %s\n", version)

	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Server.Token == "" {
		printWarning("GETTOR_SERVER_TOKEN is not set; authenticated endpoints will reject every request")
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Intake:  a.intake,
			Store:   a.store,
			Locales: a.table,
			Token:   a.cfg.Server.Token,
			Logger:  a.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, ch := range model.Channels {
		if !a.enabled(ch) {
			a.logger.Info("fulfillment disabled, no endpoint configured", "channel", string(ch))
			continue
		}
		w, err := a.newWorker(ch)
		if err != nil {
			return err
		}
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("gettor listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
