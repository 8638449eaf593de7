package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kovalyov-valentin/style-feed/internal/bot"
	"github.com/kovalyov-valentin/style-feed/internal/bot/middleware"
	"github.com/kovalyov-valentin/style-feed/internal/botkit"
	"github.com/kovalyov-valentin/style-feed/internal/cache"
	"github.com/kovalyov-valentin/style-feed/internal/client"
	"github.com/kovalyov-valentin/style-feed/internal/config"
	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/migration"
	"github.com/kovalyov-valentin/style-feed/internal/model"
	"github.com/kovalyov-valentin/style-feed/internal/notifier"
	"github.com/kovalyov-valentin/style-feed/internal/redisconn"
	"github.com/kovalyov-valentin/style-feed/internal/registry"
	"github.com/kovalyov-valentin/style-feed/internal/session"
	"github.com/kovalyov-valentin/style-feed/internal/source"
	"github.com/kovalyov-valentin/style-feed/internal/storage"
	redisstore "github.com/kovalyov-valentin/style-feed/internal/store/redis"
	"github.com/kovalyov-valentin/style-feed/internal/summary"
)

var version = "dev"

func main() {
	cfg := config.Get()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("style-feed stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("style-feed stopped")
}

func run(ctx context.Context, cfg config.Config, log logger.Logger) error {
	var (
		remote      registry.RemoteStore
		local       registry.LocalStore
		durable     cache.Durable
		posted      notifier.PostedStore
		sourceStore deps.SourceStore
	)

	db, err := connectDB(cfg, log)
	if err != nil {
		log.Warn("postgres unavailable, sources stay local", logger.Error(err))
	} else {
		defer db.Close()
		pg := storage.NewSourcePostgresStorage(db)
		sourceStore = pg
		remote = pg
	}

	// a dedicated sources service takes precedence over direct database access
	if cfg.SourcesAPIURL != "" {
		remote = client.NewSourcesClient(cfg.SourcesAPIURL, &http.Client{Timeout: cfg.FetchTimeout})
	}

	rdb, err := redisconn.New(ctx, redisconn.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.Warn("redis unavailable, feed cache is memory only", logger.Error(err))
	} else {
		defer rdb.Close()
		store := redisstore.NewStore(rdb)
		local, durable, posted = store, store, store
	}

	feedCache := cache.NewTiered(cache.NewMemorySize(cfg.MemoryCacheEntries), durable,
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(log))

	// feed urls are user supplied, only the proxy base may point at a private address
	feeds := source.NewClient(source.ClientOptions{
		HTTPClient:   source.NewGuardedHTTPClient(cfg.FetchTimeout, cfg.ProxyBaseURL),
		ProxyBaseURL: cfg.ProxyBaseURL,
		Timeout:      cfg.FetchTimeout,
		UserAgent:    cfg.UserAgent,
		MaxBodySize:  cfg.ProxyMaxBodyBytes,
		Logger:       log,
	})
	upstream := source.NewClient(source.ClientOptions{
		HTTPClient:  source.NewGuardedHTTPClient(cfg.FetchTimeout),
		Timeout:     cfg.FetchTimeout,
		UserAgent:   cfg.UserAgent,
		MaxBodySize: cfg.ProxyMaxBodyBytes,
		Logger:      log,
	})

	sessions := session.NewManager(remote, local, feedCache,
		func(src model.Source) fetcher.Source { return source.NewRSSSourceFromModel(src, feeds) },
		session.Options{
			Window:          cfg.TrendingWindow,
			RevalidateDelay: cfg.RevalidateDelay,
			RefreshInterval: cfg.RefreshInterval,
			MaxSessions:     cfg.MaxSessions,
			ResolveRetry:    cfg.ResolveRetry,
		}, log)
	defer sessions.Close()

	srv := httpserver.New(cfg.ListenAddr, log, deps.Deps{
		Logger:         log,
		StartTime:      time.Now(),
		Version:        version,
		Sessions:       sessions,
		SourceStore:    sourceStore,
		Upstream:       upstream,
		ProxyRateLimit: rate.Limit(cfg.ProxyRateLimit),
		ProxyBurst:     cfg.ProxyBurst,
		TrustProxy:     cfg.TrustProxy,
		TrendingWindow: cfg.TrendingWindow,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if cfg.TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return err
		}

		feedBot := botkit.New(botAPI, log)
		feedBot.RegisterCmdView("start", bot.ViewCmdStart())
		feedBot.RegisterCmdView("addsource", middleware.WithSession(sessions, bot.ViewCmdAddSource()))
		feedBot.RegisterCmdView("listsources", middleware.WithSession(sessions, bot.ViewCmdListSources()))
		feedBot.RegisterCmdView("togglesource", middleware.WithSession(sessions, bot.ViewCmdToggleSource()))
		feedBot.RegisterCmdView("removesource", middleware.WithSession(sessions, bot.ViewCmdRemoveSource()))
		feedBot.RegisterCmdView("resetsources", middleware.WithSession(sessions, bot.ViewCmdResetSources()))
		feedBot.RegisterCmdView("latest", middleware.WithSession(sessions, bot.ViewCmdLatest()))
		feedBot.RegisterCmdView("trending", middleware.WithSession(sessions, bot.ViewCmdTrending(cfg.TrendingWindow)))

		g.Go(func() error { return ignoreCanceled(feedBot.Run(gctx)) })

		if cfg.DigestEnabled() && posted != nil {
			digest, err := sessions.Get(ctx, cfg.DigestUserID)
			if err != nil {
				return err
			}
			n := notifier.New(digest, posted,
				summary.NewOpenAISummarizer(cfg.OpenAIKey, cfg.OpenAIPrompt, log),
				botAPI,
				notifier.Options{
					Interval:     cfg.NotificationInterval,
					LookupWindow: cfg.TrendingWindow,
					ChannelID:    cfg.TelegramChannelID,
				}, log)
			g.Go(func() error { return ignoreCanceled(n.Start(gctx)) })
		} else if cfg.DigestEnabled() {
			log.Warn("channel digest needs redis to remember posted articles, digest disabled")
		}
	}

	return g.Wait()
}

func connectDB(cfg config.Config, log logger.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if cfg.MigrateOnStart {
		m, err := migration.New(db.DB, cfg.MigrationsPath, log)
		if err == nil {
			err = m.Up()
		}
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
