package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/bot"
	"github.com/DoyleJ11/hand-cricket/internal/config"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/DoyleJ11/hand-cricket/internal/game"
	"github.com/DoyleJ11/hand-cricket/internal/httpapi"
	"github.com/DoyleJ11/hand-cricket/internal/hub"
	"github.com/DoyleJ11/hand-cricket/internal/store"
	"github.com/DoyleJ11/hand-cricket/internal/telegram"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := config.NewLogger(cfg.App.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Options{Driver: cfg.DB.Driver, DSN: cfg.DB.DSN, Debug: cfg.IsDevelopment()}, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	broadcaster := feed.NewBroadcaster(ctx)
	pubs := feed.Multi{broadcaster}
	if cfg.Redis.URL != "" {
		opts, perr := redis.ParseURL(cfg.Redis.URL)
		if perr != nil {
			return perr
		}
		opts.ContextTimeoutEnabled = true
		rdb := redis.NewClient(opts)
		defer func() { err = multierr.Append(err, rdb.Close()) }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable at startup", zap.Error(err))
		}
		pubs = append(pubs, feed.NewRedisPublisher(rdb, cfg.Redis.Stream))
		log.Info("redis event stream enabled", zap.String("stream", cfg.Redis.Stream))
	}

	tr, err := telegram.New(cfg.Bot.Token, log)
	if err != nil {
		return err
	}

	reg := hub.NewRegistry()
	h := hub.NewHub(ctx, reg, log)

	g := game.New(reg, h, tr, st, pubs, log, game.Settings{
		Overs:       cfg.Game.DefaultOvers,
		RevealDelay: cfg.Game.RevealDelay,
	})
	router := bot.NewRouter(g, tr, log, bot.Options{
		Admins:       cfg.Admins(),
		Owner:        cfg.Bot.Owner,
		SupportURL:   cfg.Bot.Support,
		ModeImageURL: cfg.Bot.ModeChoiceImage,
	})

	err = h.Post(ctx, func(ctx context.Context, _ *hub.Registry) {
		if _, err := g.Reload(ctx); err != nil {
			log.Error("reloading active matches", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	handlers := httpapi.NewHandlers(h, st, g.SaveFailures, log)
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           httpapi.SetupRoutes(handlers, broadcaster, cfg.App.CORSOrigins, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info("telegram polling started")
		return tr.Poll(ctx, func(in types.Input) {
			err := h.Post(ctx, func(ctx context.Context, _ *hub.Registry) {
				router.Handle(ctx, in)
			})
			if err != nil {
				log.Warn("dropping update", zap.String("chat_id", in.ChatID), zap.Error(err))
			}
		})
	})

	eg.Go(func() error {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		<-h.Done()
		return err
	})

	return eg.Wait()
}
