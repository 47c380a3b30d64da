package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/dkrylov/fashion_store/internal/cache"
	"github.com/dkrylov/fashion_store/internal/cart"
	"github.com/dkrylov/fashion_store/internal/checkout"
	"github.com/dkrylov/fashion_store/internal/config"
	"github.com/dkrylov/fashion_store/internal/handlers"
	"github.com/dkrylov/fashion_store/internal/inventory"
	"github.com/dkrylov/fashion_store/internal/logging"
	"github.com/dkrylov/fashion_store/internal/mailer"
	"github.com/dkrylov/fashion_store/internal/mykafka"
	"github.com/dkrylov/fashion_store/internal/notify"
	"github.com/dkrylov/fashion_store/internal/order"
	"github.com/dkrylov/fashion_store/internal/service"
	httpserver "github.com/dkrylov/fashion_store/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	db, err := config.InitDB(configuration)
	if err != nil {
		logger.Error("db init failed", "error", err)
		os.Exit(1)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	var prod *mykafka.Producer
	if configuration.KAFKA_ADDRESS != "" {
		prod = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	}

	rdb := redis.NewClient(&redis.Options{Addr: configuration.REDIS_ADDR})

	bus := notify.NewBus()
	fanout := &notify.Fanout{DB: db, Bus: bus}
	toasts := notify.NewToastQueue(notify.DefaultToastTTL)

	productCache := &cache.ProductCache{DB: db, Redis: rdb}
	invLedger := &inventory.Ledger{DB: db}

	cartStore := &cart.Store{DB: db, Producer: prod}
	ledger := &order.Ledger{
		DB:        db,
		Inventory: invLedger,
		Validator: &checkout.Validator{DB: db},
		Cart:      cartStore,
		Cache:     productCache,
		Notify:    fanout,
		Mailer:    &mailer.KafkaDispatcher{Producer: prod},
		Producer:  prod,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		DB: db,
		AuthHandler: &handlers.AuthHandler{
			DB: db, Cart: cartStore, Producer: prod,
			JWTSecret: jwtSecret, RefreshSecret: refreshSecret,
		},
		ProductHandler: &handlers.ProductHandler{
			DB: db, Cache: productCache, Inventory: invLedger, Producer: prod,
		},
		CartHandler:  &handlers.CartHandler{Cart: cartStore, Toasts: toasts},
		OrderHandler: &handlers.OrderHandler{Ledger: ledger, Toasts: toasts},
		NotificationHandler: &handlers.NotificationHandler{
			Fanout: fanout, Bus: bus, Queue: toasts,
		},
		ServiceHandler: &service.TokenService{
			DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret,
		},
	}
	httpserver.Register(e, &deps)

	// No WriteTimeout: the notification stream endpoint holds its
	// response open indefinitely.
	srv := &http.Server{
		Addr:        configuration.HTTP_ADDR,
		Handler:     e,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}
	if err := prod.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}
