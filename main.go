package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/ghdlabs/ghd-market-maker/handlers"
	"github.com/ghdlabs/ghd-market-maker/services"
	"github.com/ghdlabs/ghd-market-maker/storage"
	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	logger := log.New()
	logger.SetLevel(log.DebugLevel)

	credentials := storage.NewCredentialsStorage(logger)
	params := credentials.GetEngineParams()

	var store *storage.Storage
	if credentials.GetDatabaseDSN() != "" {
		store = storage.New(credentials, logger)
	}

	var archive interface {
		ArchiveOrder(order domain.Order)
	}
	var fills interface {
		RecordFill(fill domain.Fill)
	}
	if store != nil {
		archive = store
		fills = store
	}

	var notifier interface {
		NotifyFill(order domain.Order, quantity float64, price float64)
		NotifyHalt(reason string)
	}
	if credentials.GetTelegramBotAPIToken() != "" {
		if store == nil {
			logger.Warn("Telegram notifications need DATABASE_DSN for the subscriber list, skipping")
		} else {
			usersService := services.NewUsersService(store)
			notifier = services.NewTelegramBot(usersService, credentials, logger)
		}
	}

	signer := services.NewSigner(credentials)
	limiter := services.NewRateLimiter(params.RateLimitCapacity, params.RateLimitRefillPerSec)
	httpClient := services.NewHTTPClient(credentials, signer, limiter, services.RetryPolicy{
		MaxAttempts:    params.HTTPMaxAttempts,
		BaseBackoff:    params.HTTPBaseBackoff,
		RequestTimeout: params.HTTPRequestTimeout,
		CoolDown:       params.HTTPCoolDown,
	}, logger)

	websocketClient := services.NewWebsocketClient(ctx, credentials, logger)

	book := services.NewBook()
	volatility := services.NewVolatility(params.VolWindow, 20)
	model := services.NewQuoteModel(services.QuoteParams{
		Spread:      params.Spread,
		SkewFactor:  params.SkewFactor,
		ClipSize:    params.ClipSize,
		TickSize:    params.TickSize,
		QtyStep:     params.QtyStep,
		MinNotional: params.MinNotional,
		StaleAfter:  params.StaleAfter,
		VolFactor:   params.VolFactor,
	}, volatility)
	guard := services.NewRiskGuard(domain.RiskLimits{
		MaxPosition:          params.MaxPosition,
		MaxOrderSize:         params.MaxOrderSize,
		MaxOpenOrdersPerSide: params.MaxOpenOrdersPerSide,
		MinSpread:            params.MinSpread,
	})
	orderState := services.NewOrderState(archive, logger)

	reconciler := services.NewReconciler(services.ReconcilerConfig{
		Symbol:          credentials.GetSymbol(),
		Interval:        params.ReconcileInterval,
		DriftTolerance:  params.DriftTolerance,
		GapWait:         params.GapWait,
		ShutdownTimeout: params.ShutdownTimeout,
	}, httpClient, model, guard, orderState, book, volatility, websocketClient.Events(), fills, notifier, logger)

	handlers.NewServer(reconciler, logger).Serve(credentials.GetOpsAddr())

	go func() {
		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		<-done
		cancel()
	}()

	if err := reconciler.Run(ctx); err != nil {
		logger.Fatalf("engine: %v", err)
	}
}
