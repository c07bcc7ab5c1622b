// Package app wires the process-wide services together. Each service is
// constructed exactly once at startup and passed down explicitly; shutdown
// tears them down in reverse order.
package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/elicharlese/ThePublic-sub000/internal/cache"
	"github.com/elicharlese/ThePublic-sub000/internal/config"
	"github.com/elicharlese/ThePublic-sub000/internal/events"
	"github.com/elicharlese/ThePublic-sub000/internal/geolocation"
	"github.com/elicharlese/ThePublic-sub000/internal/notify"
	"github.com/elicharlese/ThePublic-sub000/internal/registry"
	"github.com/elicharlese/ThePublic-sub000/internal/rewards"
	"github.com/elicharlese/ThePublic-sub000/internal/solana"
	"github.com/elicharlese/ThePublic-sub000/internal/stats"
	"github.com/elicharlese/ThePublic-sub000/internal/store"
)

// App is the application context.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Cache      *cache.Cache
	Bus        *events.Bus
	Ledger     *solana.Client
	Registry   *registry.Registry
	Engine     *rewards.Engine
	Aggregator *stats.Aggregator
	Geo        *geolocation.Service

	rewardNotifier *notify.RewardNotifier
	telegram       *notify.TelegramAlerter

	cancel context.CancelFunc
}

// New constructs every service from config.
func New(cfg *config.Config) (*App, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	st, err := store.New(db)
	if err != nil {
		return nil, err
	}

	ca := cache.New(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	bus := events.New(ca.Client())
	st.SetObserver(bus)

	ledger := solana.NewClient(cfg.LedgerEndpoints, cfg.LedgerTimeout)

	var geo *geolocation.Service
	if cfg.GeoDBPath != "" {
		if geo, err = geolocation.Open(cfg.GeoDBPath); err != nil {
			logrus.Warn("Geolocation disabled, locations fall back to registrant input: ", err)
			geo = nil
		}
	}

	a := &App{
		Config:     cfg,
		Store:      st,
		Cache:      ca,
		Bus:        bus,
		Ledger:     ledger,
		Registry:   registry.New(st, ledger, geo, cfg.LedgerTimeout),
		Engine:     rewards.New(st, ledger, rewards.DefaultParams(), cfg.LedgerTimeout),
		Aggregator: stats.New(st, ledger, cfg.LedgerTimeout),
		Geo:        geo,
	}

	a.rewardNotifier = notify.NewRewardNotifier(bus, notify.EmailConfig{
		From:     cfg.NotifyEmailFrom,
		Password: cfg.NotifyEmailPassword,
		SMTPAddr: cfg.NotifySMTPAddr,
	})

	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramAlerter(bus, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			logrus.Warn("Telegram alerts disabled: ", err)
		} else {
			a.telegram = tg
		}
	}

	return a, nil
}

// Start launches the background schedulers.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Aggregator.Run(ctx, a.Config.SnapshotInterval)
	if a.Config.RewardsEnabled {
		go a.runRewardLoop(ctx)
	}
}

// runRewardLoop closes a reward period once per interval.
func (a *App) runRewardLoop(ctx context.Context) {
	ticker := time.NewTicker(a.Config.RewardInterval)
	defer ticker.Stop()

	logrus.Infof("Reward scheduler started (every %s)", a.Config.RewardInterval)
	periodStart := time.Now().UTC()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Reward scheduler stopped")
			return
		case <-ticker.C:
			periodEnd := time.Now().UTC()
			results, err := a.Engine.RunPeriod(ctx, periodStart, periodEnd)
			if err != nil {
				logrus.Error("Reward period failed: ", err)
				continue
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			logrus.WithFields(logrus.Fields{
				"rewards": len(results),
				"failed":  failed,
			}).Info("Reward period distributed")
			periodStart = periodEnd
		}
	}
}

// Close tears down services in reverse construction order.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.telegram != nil {
		a.telegram.Close()
	}
	if a.rewardNotifier != nil {
		a.rewardNotifier.Close()
	}
	a.Bus.Close()
	if err := a.Cache.Close(); err != nil {
		logrus.Warn("Failed to close redis connection: ", err)
	}
	a.Geo.Close()
}
