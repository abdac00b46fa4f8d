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

	"github.com/deve1070/cmms-sub000/internal/auth"
	"github.com/deve1070/cmms-sub000/internal/config"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/events"
	"github.com/deve1070/cmms-sub000/internal/handlers"
	"github.com/deve1070/cmms-sub000/internal/inventory"
	"github.com/deve1070/cmms-sub000/internal/lock"
	"github.com/deve1070/cmms-sub000/internal/logging"
	"github.com/deve1070/cmms-sub000/internal/middleware"
	"github.com/deve1070/cmms-sub000/internal/pm"
	"github.com/deve1070/cmms-sub000/internal/workorder"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// app is the wired server and everything it has to close on shutdown.
type app struct {
	echo      *echo.Echo
	generator *pm.Generator
	closers   []func(context.Context) error
	log       logrus.FieldLogger
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.PM.Interval > 0 {
		go a.generator.Run(ctx, cfg.PM.Interval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		errCh <- a.echo.Start(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.echo.Shutdown(shutdownCtx)
}

func newApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	a := &app{log: log}

	store, ping, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	locker, err := a.openLocker(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	hub := events.NewHub(log)
	publisher := events.Multi{hub}
	if cfg.MQTT.Broker != "" {
		mq, err := events.ConnectMQTT(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, log)
		if err != nil {
			// events are best effort, the core runs without a broker
			log.WithError(err).Warn("mqtt unavailable, publishing to websocket only")
		} else {
			publisher = append(publisher, mq)
			a.closers = append(a.closers, func(context.Context) error { mq.Close(); return nil })
		}
	}

	authService, err := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expiration)
	if err != nil {
		a.close()
		return nil, err
	}

	ledger := inventory.NewLedger(store.SpareParts(), log, inventory.WithPublisher(publisher))
	engine := workorder.NewService(store, ledger, log,
		workorder.WithPublisher(publisher),
		workorder.WithUserDirectory(store.Users()))
	a.generator = pm.NewGenerator(store, store.Equipment(), engine, locker, cfg.PM.LockTTL, publisher, log)

	a.echo = newEcho(cfg, log)
	handlers.Register(a.echo, handlers.Deps{
		WorkOrders: engine,
		Ledger:     ledger,
		Schedules:  pm.NewSchedules(store.Schedules(), log, nil),
		Generator:  a.generator,
		Hub:        hub,
		Auth:       middleware.NewAuthMiddleware(authService),
		Ping:       ping,
		Log:        log,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (db.Store, func(context.Context) error, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return db.NewMemoryStore(), nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := db.ConnectMongo(connectCtx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	store := db.NewMongoStore(client, cfg.Mongo.DBName, cfg.Mongo.Transactions)
	if err := store.EnsureIndexes(connectCtx); err != nil {
		_ = store.Close(context.Background())
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	log.WithFields(logrus.Fields{
		"db":           cfg.Mongo.DBName,
		"transactions": cfg.Mongo.Transactions,
	}).Info("connected to MongoDB")
	if !cfg.Mongo.Transactions {
		log.Warn("mongo transactions disabled, failed multi-record writes are compensated instead of rolled back")
	}
	return store, func(ctx context.Context) error { return client.Ping(ctx, nil) }, nil
}

func (a *app) openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.Redis.Address == "" {
		return lock.NewLocalLocker(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.log.WithField("address", cfg.Redis.Address).Info("using redis for generator lock")
	return lock.NewRedisLocker(client, "cmms:lock:"), nil
}

func newEcho(cfg *config.Config, log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	if cfg.Server.RateLimit > 0 {
		e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit))))
	}
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))
	return e
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.WithError(err).Warn("shutdown step failed")
		}
	}
}
