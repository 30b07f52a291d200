package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alert-harvest/internal/harvest/aggregate"
	"alert-harvest/internal/harvest/boundary"
	"alert-harvest/internal/harvest/fetcher"
	"alert-harvest/internal/harvest/helper"
	"alert-harvest/internal/harvest/lock"
	"alert-harvest/internal/harvest/metrics"
	"alert-harvest/internal/harvest/pipeline"
	"alert-harvest/internal/middleware/logger"
	"alert-harvest/pkg/config"
)

const connectTimeout = 10 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "alert-harvest",
	Short: "Harvest and classify alert messages from Slack channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file")
	rootCmd.AddCommand(serveCmd(), crawlCmd())
}

func Execute() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	stores  *helper.Stores
	metrics *metrics.Metrics
	runner  *pipeline.Runner
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	stores := helper.MustMongo(connectCtx, cfg.Mongo)
	m := metrics.New()

	var closers []func() error
	var channelLock lock.ChannelLock = lock.NewLocal()
	var renew time.Duration
	if cfg.Redis.Address != "" {
		client, err := lock.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		closers = append(closers, client.Close)
		channelLock = lock.NewRedis(client, cfg.Redis.LockTTL())
		renew = cfg.Redis.LockRenew()
	}

	pages := fetcher.NewSlackPageFetcher(log, &http.Client{Timeout: cfg.Slack.Timeout()}, cfg.Slack.BaseURL, cfg.Slack.BotToken)
	crawler := fetcher.NewCrawler(log, pages, m, cfg.Crawl.PagePause(), cfg.Crawl.RetryInterval())
	tracker := boundary.NewTracker(log, stores)
	runner := pipeline.NewRunner(log, channelLock, tracker, crawler, stores, m, aggregate.Options{Months: cfg.Report.Months})
	runner.Renew = renew

	return &app{
		cfg:     cfg,
		log:     log,
		stores:  stores,
		metrics: m,
		runner:  runner,
		closers: closers,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := a.stores.DB.Client().Disconnect(ctx); err != nil {
		a.log.Warn("Failed to disconnect mongo", zap.Error(err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("Failed to close client", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
