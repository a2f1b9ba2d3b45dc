package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/config"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/events"
	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/store"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/taxonomy"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath string
	listen     string
	dataDir    string
	cleanupNow bool
}

func main() {
	appLog.Info("taxopress starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dataDir != "" {
		conf.DataDir = flags.dataDir
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	level, _ := appLog.ParseLevel(conf.LogLevel)
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_dir", conf.DataDir,
		"timezone", conf.Timezone,
		"taxonomies", len(conf.Taxonomies),
		"default_taxonomy", conf.DefaultTaxonomy,
		"feeds", len(conf.Feeds),
		"refresh", conf.RefreshCron,
		"cleanup", conf.Cleanup.Schedule,
		"kafka_brokers", len(conf.Kafka.Brokers),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("taxopress failed", err)
		os.Exit(1)
	}
	appLog.Info("taxopress exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	st, err := store.Open(conf.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher, err := newPublisher(conf)
	if err != nil {
		return err
	}
	defer publisher.Close()

	manager := taxonomy.NewManager(st, publisher)

	if flags.cleanupNow {
		runCleanup(ctx, manager, conf)
		return nil
	}

	srv := web.NewServer(conf, st, manager)

	scheduler, err := newScheduler(ctx, conf, manager, srv)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	// Warm the feed cache in the background so the first request is fast.
	go func() {
		if err := srv.RefreshFeeds(ctx); err != nil {
			appLog.Warn("initial feed refresh incomplete", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newPublisher returns a Kafka publisher when brokers are configured and
// drops events otherwise.
func newPublisher(conf *config.Config) (events.Publisher, error) {
	if len(conf.Kafka.Brokers) == 0 {
		return events.Nop{}, nil
	}
	k, err := events.NewKafka(conf.Kafka.Brokers, conf.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	appLog.Info("kafka publisher ready", "brokers", len(conf.Kafka.Brokers), "topic", conf.Kafka.Topic)
	return k, nil
}

func newScheduler(ctx context.Context, conf *config.Config, manager *taxonomy.Manager, srv *web.Server) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(conf.Location()))

	if len(conf.Feeds) > 0 {
		if _, err := c.AddFunc(conf.RefreshCron, func() {
			if err := srv.RefreshFeeds(ctx); err != nil {
				appLog.Error("scheduled feed refresh failed", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	if conf.Cleanup.Schedule != "" {
		if _, err := c.AddFunc(conf.Cleanup.Schedule, func() { runCleanup(ctx, manager, conf) }); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// runCleanup deletes the rarely used terms of the cleanup taxonomy.
func runCleanup(ctx context.Context, manager *taxonomy.Manager, conf *config.Config) {
	sc := taxonomy.Scope{Taxonomy: conf.Cleanup.Taxonomy, PostType: conf.PostType, PostTypeName: conf.PostTypeName}
	notices := manager.RemoveRarelyUsed(ctx, sc, conf.Cleanup.MinUses)
	for _, n := range notices {
		if n.Kind == taxonomy.KindError {
			appLog.Warn("cleanup", "taxonomy", sc.Taxonomy, "message", n.Message)
			continue
		}
		appLog.Info("cleanup", "taxonomy", sc.Taxonomy, "message", n.Message)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/taxopress/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.dataDir, "data-dir", "", "Database directory (overrides config if set)")
	flag.BoolVar(&cfg.cleanupNow, "cleanup-now", false, "Delete rarely used terms once and exit")

	flag.Parse()

	return cfg
}
