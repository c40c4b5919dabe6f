package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/quiz-battle-backend/internal/auth"
	"github.com/DoyleJ11/quiz-battle-backend/internal/bot"
	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/config"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/httpapi"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/logging"
	"github.com/DoyleJ11/quiz-battle-backend/internal/questions"
	"github.com/DoyleJ11/quiz-battle-backend/internal/room"
	"github.com/DoyleJ11/quiz-battle-backend/internal/scoring"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if cfg.DefaultSecret() {
		log.Warn("AUTH_SECRET not set, signing tokens with the built-in dev secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, bank, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStorage()) }()

	broker := channel.NewBroker(log.Named("broker"), cfg.SubscriberBuffer)
	defer func() { err = multierr.Append(err, broker.Close()) }()

	rules := engine.Rules{RevealDwell: cfg.RevealDwell, BasePoints: scoring.DefaultBasePoints}
	bots := bot.NewResponder(bot.Config{MinDelay: cfg.BotMinDelay, Accuracy: cfg.BotAccuracy},
		rand.New(rand.NewSource(time.Now().UnixNano())))

	// rooms outlive the signal so Shutdown can drain them
	h := hub.NewHub(context.Background(), room.Deps{
		Store:     st,
		Bank:      bank,
		Transport: broker,
		Bots:      bots,
		Logger:    log.Named("room"),
	}, room.Options{
		TickInterval:   cfg.TickInterval,
		GracePeriod:    cfg.GracePeriod,
		PublishRetries: cfg.PublishRetries,
	}, rules)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:       h,
			Store:     st,
			Transport: broker,
			Auth:      auth.NewVerifier(cfg.AuthSecret, 24*time.Hour),
			Rules:     rules,
			Logger:    log,
			Dev:       cfg.Dev,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("dev", cfg.Dev))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(shutdownCtx),
			h.Shutdown(shutdownCtx),
		)
	})
	return g.Wait()
}

// openStorage picks postgres when DATABASE_URL is set and memory otherwise.
func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, questions.Bank, func() error, error) {
	if cfg.DatabaseURL == "" {
		bank, err := questions.LoadFile(cfg.QuestionsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("using in-memory storage", zap.String("questions", cfg.QuestionsFile))
		return store.NewMemory(), bank, func() error { return nil }, nil
	}

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		return nil, nil, nil, err
	}
	rooms, err := store.OpenGorm(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	bank, err := questions.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, multierr.Append(err, rooms.Close())
	}

	// seed from the JSON file when it is around; the database stays authoritative
	if seed, err := questions.LoadFile(cfg.QuestionsFile); err == nil {
		n, err := bank.Seed(ctx, seed.Sets())
		if err != nil {
			bank.Close()
			return nil, nil, nil, multierr.Append(err, rooms.Close())
		}
		if n > 0 {
			log.Info("seeded question sets", zap.Int("sets", n))
		}
	}

	log.Info("using postgres storage")
	closeAll := func() error {
		bank.Close()
		return rooms.Close()
	}
	return rooms, bank, closeAll, nil
}
