package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbxlabs/shipbox/config"
	"github.com/rbxlabs/shipbox/internal/api/shipapi"
	"github.com/rbxlabs/shipbox/internal/broker/kafka"
	"github.com/rbxlabs/shipbox/internal/cache/rediscache"
	"github.com/rbxlabs/shipbox/internal/integrations/melhorenvio"
	"github.com/rbxlabs/shipbox/internal/services/reconciler"
	"github.com/rbxlabs/shipbox/internal/storage/pgship"
	"github.com/rbxlabs/shipbox/internal/tokens"
)

const defaultUserAgent = "ShipBox Integration (suporte@shipbox.dev)"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		panic(fmt.Sprintf("failed to load secrets: %v", err))
	}

	baseURL := cfg.ShipBox.MEBaseURL
	if baseURL == "" {
		baseURL = "https://melhorenvio.com.br"
	}
	userAgent := cfg.ShipBox.MEUserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	topic := cfg.Kafka.ShipmentUpdatedTopicName
	if topic == "" {
		topic = "shipment.updated"
	}
	reconcileDelay := time.Duration(cfg.ShipBox.ReconcileDelaySeconds) * time.Second
	if reconcileDelay <= 0 {
		reconcileDelay = 60 * time.Second
	}
	ordersCacheTTL := time.Duration(cfg.ShipBox.OrdersCacheTTLSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgship.New(connString)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	// One outbound pool for the whole process; torn down on shutdown.
	httpc := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
		},
	}
	defer httpc.CloseIdleConnections()

	tm := tokens.New(st, httpc, tokens.Config{
		TokenEndpoint: baseURL + "/oauth/token",
		ClientID:      secrets.ClientID,
		ClientSecret:  secrets.ClientSecret,
		RedirectURI:   secrets.RedirectURI,
		UserAgent:     userAgent,
	})

	me := melhorenvio.New(baseURL, userAgent, tm, httpc)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	if cfg.Redis.Host != "" {
		if perMin := cfg.ShipBox.APIRateLimitPerMinute; perMin > 0 {
			me.WithRateLimiter(rediscache.NewRateLimiter(redisAddr), int64(perMin))
		}
	}

	producer := kafka.NewProducer([]string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)})

	rec := reconciler.New(me, st).
		WithProducer(producer, topic).
		WithDelay(reconcileDelay).
		WithConcurrency(cfg.ShipBox.ReconcileConcurrency)

	api := shipapi.New(me, tm, rec, reconcileDelay)
	if cfg.Redis.Host != "" && ordersCacheTTL > 0 {
		api.WithCache(rediscache.New(redisAddr), ordersCacheTTL)
	}

	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/swagger.json"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = runShipAPI(ctx, shipAPIOpts{
		httpAddr:    cfg.ShipBox.HTTPAddr,
		swaggerPath: swaggerPath,
		onListen: func(addr string) {
			slog.Info("ship-api listening", "addr", addr)
		},
	}, api)

	// Drain in-flight deferred passes before the process exits.
	rec.WaitDeferred()

	if err != nil && err != context.Canceled && err != http.ErrServerClosed {
		panic(err)
	}
}
