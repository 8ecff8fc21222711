// Package app wires the payment services from Config. The HTTP server and
// the ops CLI share it so both run the same engine against the same store.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Govind-619/paysync/config"
	"github.com/Govind-619/paysync/controllers"
	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/lock"
	"github.com/Govind-619/paysync/notify"
	"github.com/Govind-619/paysync/ordersync"
	"github.com/Govind-619/paysync/poller"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const notifyTimeout = 30 * time.Second

// App holds the wired services
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Payments repository.PaymentRepository
	Orders   repository.OrderRepository
	Gateway  gateway.Client
	Engine   *reconcile.Engine
	Poller   *poller.Scheduler

	dispatcher *notify.AsyncDispatcher
	redisLock  *lock.Redis
}

// New connects to the database (and redis when configured) and builds every service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		DB:       db,
		Payments: repository.NewGormPaymentRepository(db),
		Orders:   repository.NewGormOrderRepository(db),
		Gateway:  NewGateway(cfg),
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.LockBackend == "redis" {
		a.redisLock, err = lock.NewRedis(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		locker = a.redisLock
		utils.LogInfo("Using redis payment locks at %s", cfg.RedisAddr)
	}

	a.dispatcher = notify.NewAsyncDispatcher(NewDispatcher(cfg), cfg.NotifyWorkers, cfg.NotifyQueue, notifyTimeout)
	syncer := ordersync.New(a.Orders, a.dispatcher, cfg.AdminEmail)

	a.Engine = reconcile.NewEngine(a.Payments, locker, syncer, reconcile.WithPendingTimeout(cfg.PendingTimeout))
	a.Poller = poller.New(a.Payments, a.Gateway, a.Engine, poller.Config{
		Interval:      cfg.PollInterval,
		MaxInterval:   cfg.PollMaxInterval,
		FastAttempts:  cfg.PollFastAttempts,
		MaxAttempts:   cfg.PollMaxAttempts,
		BatchSize:     cfg.PollBatchSize,
		Concurrency:   cfg.PollConcurrency,
		SweepInterval: cfg.SweepInterval,
	})
	return a, nil
}

// NewGateway picks the gateway client named by GATEWAY_PROVIDER
func NewGateway(cfg *config.Config) gateway.Client {
	if cfg.GatewayProvider == "razorpay" {
		utils.LogInfo("Using razorpay gateway")
		return gateway.NewRazorpayClient(cfg.RazorpayKey, cfg.RazorpaySecret)
	}
	utils.LogInfo("Using HTTP gateway at %s", cfg.GatewayBaseURL)
	return gateway.NewHTTPClient(gateway.HTTPConfig{
		BaseURL: cfg.GatewayBaseURL,
		Token:   cfg.GatewayToken,
		Timeout: cfg.GatewayTimeout,
	})
}

// NewDispatcher sends email when SMTP is configured and only logs otherwise
func NewDispatcher(cfg *config.Config) notify.Dispatcher {
	if cfg.SMTPHost == "" {
		utils.LogInfo("SMTP not configured, notifications are logged only")
		return notify.LogDispatcher{}
	}
	return notify.NewEmailDispatcher(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

// PaymentController returns the HTTP handlers bound to the wired services
func (a *App) PaymentController() *controllers.PaymentController {
	return &controllers.PaymentController{
		Payments:      a.Payments,
		Orders:        a.Orders,
		Engine:        a.Engine,
		Poller:        a.Poller,
		Gateway:       a.Gateway,
		WebhookSecret: a.Config.WebhookSecret,
		CallbackURL:   a.Config.CallbackURL,
	}
}

// Close drains queued notifications and releases connections
func (a *App) Close() error {
	a.dispatcher.Close()

	var firstErr error
	if a.redisLock != nil {
		if err := a.redisLock.Close(); err != nil {
			firstErr = fmt.Errorf("close redis: %w", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database: %w", err)
		}
	}
	return firstErr
}
