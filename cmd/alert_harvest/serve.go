package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alert-harvest/internal/harvest/api"
	"alert-harvest/internal/harvest/scheduler"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled harvest worker and the reporting API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			a.log.Info("Starting alert harvest service...")

			worker := &scheduler.Worker{
				Log:         a.log,
				Channels:    a.stores,
				Runner:      a.runner,
				Spec:        a.cfg.Schedule.Cron,
				Concurrency: a.cfg.Crawl.Concurrency,
				RunOnStart:  a.cfg.Schedule.RunOnStart,
			}
			workerDone := make(chan error, 1)
			go func() { workerDone <- worker.Run(ctx) }()

			srv := &api.Server{Log: a.log, Stores: a.stores, Metrics: a.metrics, Months: a.cfg.Report.Months}
			r := srv.Router()
			_ = r.SetTrustedProxies(nil)
			httpSrv := &http.Server{Addr: a.cfg.Server.Address, Handler: r, ReadHeaderTimeout: 10 * time.Second}

			serveErr := make(chan error, 1)
			go func() {
				a.log.Info("Alert harvest service is running", zap.String("address", a.cfg.Server.Address))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			workerStopped := false
			select {
			case <-ctx.Done():
			case err := <-serveErr:
				return err
			case err := <-workerDone:
				if err != nil {
					return err
				}
				workerStopped = true
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("HTTP shutdown failed", zap.Error(err))
			}
			if !workerStopped {
				<-workerDone
			}
			a.log.Info("Alert harvest service stopped")
			return nil
		},
	}
}
