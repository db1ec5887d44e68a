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

	"github.com/ndukhin/marketplace/internal/config"
	"github.com/ndukhin/marketplace/internal/es"
	"github.com/ndukhin/marketplace/internal/handlers"
	"github.com/ndukhin/marketplace/internal/handlers/cart"
	orderhdl "github.com/ndukhin/marketplace/internal/handlers/order"
	"github.com/ndukhin/marketplace/internal/logging"
	"github.com/ndukhin/marketplace/internal/mykafka"
	orderservice "github.com/ndukhin/marketplace/internal/service/order"
	"github.com/ndukhin/marketplace/internal/service/token"
	httpserver "github.com/ndukhin/marketplace/internal/transport/http"
)

const productIndex = "product"

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	prod, err := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	tokenService := &token.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret}
	orderSvc := &orderservice.OrderService{DB: db}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.IntoContext(req.Context(), logger.With(
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		AuthHandler:     &handlers.AuthHandler{DB: db, Tokens: tokenService, Producer: prod},
		ProductHandler:  &handlers.ProductHandler{DB: db, Producer: prod, ES: esClient, Index: productIndex},
		SearchHandler:   &handlers.SearchHandler{ES: esClient, Index: productIndex},
		WishlistHandler: &handlers.WishlistHandler{DB: db},
		CartHandler:     &cart.CartHandler{DB: db, Producer: prod},
		OrderHandler:    &orderhdl.OrderHandler{Svc: orderSvc, Producer: prod},
		TokenService:    tokenService,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
