package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ykvlv/weather-bot/internal/config"
	"github.com/ykvlv/weather-bot/internal/scheduler"
	"github.com/ykvlv/weather-bot/internal/store"
	"github.com/ykvlv/weather-bot/internal/telegram"
	"github.com/ykvlv/weather-bot/internal/weather"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	ready   atomic.Bool
	repo    store.Repo
	router  *telegram.Router
	sched   *scheduler.Scheduler
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	a := &App{cfg: cfg, log: log, bot: bot}
	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      a.routes(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !a.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting weather-bot",
		zap.String("bot", a.bot.Self.UserName),
		zap.String("store", a.cfg.StoreDriver),
		zap.String("http", a.cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, store.Options{
		Driver:      a.cfg.StoreDriver,
		SQLitePath:  a.cfg.DBPath,
		PostgresURL: a.cfg.DatabaseURL,
		JSONPath:    a.cfg.JSONPath,
	})
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("store ready", zap.String("driver", a.cfg.StoreDriver))

	wx := weather.NewClient(&http.Client{Timeout: a.cfg.OWMTimeout}, weather.Config{
		APIKey: a.cfg.OWMAPIKey,
		Lang:   a.cfg.OWMLang,
	})
	loc := a.cfg.Location()

	a.router = telegram.NewRouter(a.bot, a.log.Named("telegram"), a.repo, wx, telegram.Options{
		AdminChatID: a.cfg.AdminChatID,
		DefaultTZ:   loc,
		SendRate:    a.cfg.SendRate,
	})
	a.sched = scheduler.New(a.repo, weather.NewDigest(wx, a.log.Named("digest")), a.router, a.log.Named("scheduler"), scheduler.Options{
		TickInterval: a.cfg.TickInterval,
		DefaultTZ:    loc,
		Workers:      a.cfg.SweepWorkers,
		CallTimeout:  a.cfg.OWMTimeout + 5*time.Second,
	})

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := a.sched.Start(ctx); err != nil {
			a.log.Error("scheduler exited", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	a.ready.Store(true)
	a.router.NotifyAdmin(ctx, "Weather bot started ✅")

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown(schedDone)
			return nil

		case upd, ok := <-updCh:
			if !ok {
				a.log.Warn("updates channel closed")
				stop()
				a.shutdown(schedDone)
				return nil
			}
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown stops intake, waits for the in-flight sweep and releases resources.
func (a *App) shutdown(schedDone <-chan struct{}) {
	a.ready.Store(false)
	a.bot.StopReceivingUpdates()
	<-schedDone

	// Create a short-lived shutdown context and cancel it immediately after use.
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	if err := a.repo.Close(); err != nil {
		a.log.Warn("store close error", zap.Error(err))
	}
	a.log.Info("stopped")
}
