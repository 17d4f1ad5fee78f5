package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/UkralStul/requestwatch/internal/classify"
	"github.com/UkralStul/requestwatch/internal/community"
	"github.com/UkralStul/requestwatch/internal/config"
	"github.com/UkralStul/requestwatch/internal/engine"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/feed/reddit"
	"github.com/UkralStul/requestwatch/internal/logging"
	"github.com/UkralStul/requestwatch/internal/notify/matrix"
	"github.com/UkralStul/requestwatch/internal/stats"
	"github.com/UkralStul/requestwatch/internal/storage"
	"github.com/UkralStul/requestwatch/internal/storage/inmemory"
	"github.com/UkralStul/requestwatch/internal/storage/sqlstore"
	"github.com/UkralStul/requestwatch/internal/transport/httpapi"
)

const usage = `usage: requestwatch [-storage driver] [command]

commands:
  run                 start the bot (default)
  stats [-hours N]    print request statistics
  details <post_id>   print the stored record of a post
`

func main() {
	storageType := flag.String("storage", "", "Storage driver override (sqlite, postgres or in-memory)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if *storageType != "" {
		cfg.Storage.Driver = *storageType
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("invalid config: %v", err)
		}
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("failed to set up logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		err = run(ctx, cfg, log)
	case "stats":
		err = printStats(ctx, cfg, log, args)
	case "details":
		err = printDetails(ctx, cfg, log, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatalf("%s failed", cmd)
	}
}

// openStore возвращает хранилище и функцию его закрытия.
func openStore(cfg config.StorageConfig, log logrus.FieldLogger) (storage.Storage, func() error, error) {
	log.Infof("Opening %s storage", cfg.Driver)
	switch cfg.Driver {
	case config.DriverInMemory:
		return inmemory.New(), func() error { return nil }, nil
	case config.DriverSQLite:
		store, err := sqlstore.Open(sqlstore.DriverSQLite, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverPostgres:
		store, err := sqlstore.Open(sqlstore.DriverPostgres, cfg.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if err := cfg.RequireBot(); err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("failed to close storage")
		}
	}()

	client := reddit.New(ctx, reddit.Config{
		BaseURL:           cfg.Reddit.BaseURL,
		TokenURL:          cfg.Reddit.TokenURL,
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.Secret,
		Username:          cfg.Reddit.Username,
		Password:          cfg.Reddit.Password,
		UserAgent:         cfg.Reddit.UserAgent,
		RequestsPerMinute: cfg.Reddit.RequestsPerMinute,
		Burst:             cfg.Reddit.Burst,
		Timeout:           cfg.Reddit.Timeout,
	}, log.WithField("component", "reddit"))

	sink, err := matrix.New(matrix.Config{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		UserID:        cfg.Matrix.UserID,
		AccessToken:   cfg.Matrix.AccessToken,
		MarkerTTL:     cfg.Engine.MaxPostAge(),
	}, log.WithField("component", "matrix"))
	if err != nil {
		return err
	}

	authority := classify.ByFlair(cfg.Classifier.Flair)
	if cfg.Classifier.Authority == config.AuthorityAccount {
		authority = classify.ByAccount(cfg.Classifier.Account)
	}

	hub := events.NewHub(16)
	deps := engine.Deps{
		Feed:       client,
		Sink:       sink,
		Store:      store,
		Classifier: classify.New(authority),
		Prober:     community.NewProber(client, log.WithField("component", "prober")),
		Events:     hub,
	}
	discovery := engine.NewDiscovery(deps, engine.DiscoveryConfig{
		Source:     cfg.Reddit.Subreddit,
		Channels:   cfg.Matrix.Rooms,
		FirstBatch: cfg.Engine.FirstBatch,
		Batch:      cfg.Engine.Batch,
	})
	reconciler := engine.NewReconciler(deps, engine.ReconcileConfig{
		MinAge: cfg.Engine.MinPostAge(),
		MaxAge: cfg.Engine.MaxPostAge(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(httpapi.Deps{Store: store, Hub: hub, Log: log.WithField("component", "http")}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sink.Connect(gctx) })
	g.Go(func() error {
		return engine.Schedule(gctx, sink, discovery, cfg.Engine.DiscoveryInterval, log)
	})
	g.Go(func() error {
		return engine.Schedule(gctx, sink, reconciler, cfg.Engine.ReconcileInterval, log)
	})
	g.Go(func() error {
		log.Infof("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("Stopped")
	return err
}

func printStats(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	hours := fs.Int("hours", 24, "Report period in hours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore()

	report, err := stats.Build(ctx, store, time.Now().UTC(), *hours)
	if err != nil {
		return err
	}
	return report.Write(os.Stdout)
}

func printDetails(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, args []string) error {
	if len(args) != 1 {
		return errors.New("details expects exactly one post id")
	}

	store, closeStore, err := openStore(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore()

	post, err := store.Post(ctx, args[0])
	if err != nil {
		return err
	}
	refs, err := store.NotificationsFor(ctx, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Post          any `json:"post"`
		Notifications any `json:"notifications"`
	}{post, refs})
}
