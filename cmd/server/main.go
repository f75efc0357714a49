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
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/fixture"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
	pgstore "pharmapos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else if cfg.DemoSeedDays > 0 {
		repo = memory.NewWithDevUsers()
		log.Info("repository: in-memory, catalog from demo history")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	if cfg.DemoSeedDays > 0 {
		switch err := seedDemoHistory(ctx, repo, cfg); {
		case errors.Is(err, store.ErrConflict):
			log.WithError(err).Warn("demo history already present, skipping import")
		case err != nil:
			log.WithError(err).Fatal("seed demo history")
		default:
			log.WithField("days", cfg.DemoSeedDays).Info("demo history imported")
		}
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using noop report cache")
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("report cache: redis")
		}
	} else {
		log.Info("report cache: noop")
	}

	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL, cfg.ManagerPIN, repo)
	svc := service.New(repo, reports, auth, service.Options{
		Location:       cfg.Location,
		PhoneRegion:    cfg.PhoneRegion,
		ReportCacheTTL: cfg.ReportCacheTTL,
		Shop:           cfg.Shop(),
		Logger:         log,
	})
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Address(), "timezone": cfg.ShopTimezone}).Info("pharmacy POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Error("close error")
		}
	}

	log.Info("server stopped")
}

// seedDemoHistory imports DemoSeedDays of generated trading that ends
// yesterday in the shop timezone.
func seedDemoHistory(ctx context.Context, repo store.Repository, cfg config.Config) error {
	today := time.Now().In(cfg.Location)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, cfg.Location).AddDate(0, 0, -cfg.DemoSeedDays)

	opts := fixture.DefaultOptions()
	opts.Seed = cfg.DemoSeed
	opts.Start = start
	opts.Days = cfg.DemoSeedDays
	opts.Location = cfg.Location

	corpus, err := fixture.New(opts).Generate()
	if err != nil {
		return err
	}
	return repo.ImportHistory(ctx, store.History{
		Medicines: corpus.Catalog,
		Sales:     corpus.Sales,
		Movements: corpus.Movements,
		Stock:     corpus.Stock,
	})
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return errors.New("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are non-numeric, a single repeated
// digit, a straight run (123456, 987654) or on the common list.
func validatePINStrength(pin string) error {
	for _, r := range pin {
		if r < '0' || r > '9' {
			return errors.New("PIN must be digits only")
		}
	}

	known := map[string]bool{
		"121212": true, "112233": true, "123123": true, "159753": true, "147258": true,
	}
	if known[pin] {
		return errors.New("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return errors.New("sequential PIN not allowed")
	}

	return nil
}
