package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"illustrator/internal/bootstrap"
	"illustrator/internal/conversion"
	"illustrator/internal/credits"
	"illustrator/internal/generation"
	"illustrator/internal/http/handlers"
	"illustrator/internal/http/httpapi"
	"illustrator/internal/infra"
	"illustrator/internal/providers/genai"
	"illustrator/internal/providers/image"
	"illustrator/internal/storage"
)

// drainTimeout bounds how long shutdown waits for detached jobs. Jobs still running after it
// are failed and refunded by the watchdog on the next status read.
const drainTimeout = 2 * time.Minute

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: store setup failed")
	}
	defer stores.Close()

	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: blob storage setup failed")
	}

	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		ScorerModel: cfg.GeminiScorerModel,
		HTTPClient:  &http.Client{Timeout: cfg.GenerationTimeout + 10*time.Second},
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: model client setup failed")
	}
	if client.Synthetic() {
		logger.Warn().Msg("api: GEMINI_API_KEY not set, using synthetic illustrations")
	}

	metrics := infra.NewMetrics()
	gate, err := generation.NewQualityGate(image.NewGeminiScorer(client), cfg.QualityTimeout, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: quality gate setup failed")
	}
	attempter := generation.NewAttempter(image.NewGeminiGenerator(client), gate, logger, generation.AttempterOptions{
		Timeout: cfg.GenerationTimeout,
		Backoff: cfg.RetryBackoff,
		Metrics: metrics,
	})

	ledger := credits.NewLedger(stores.Ledger, logger, credits.Options{
		DailyFreeCredits:    cfg.DailyFreeCredits,
		AnonymousDailyLimit: cfg.AnonymousDailyLimit,
		Metrics:             metrics,
	})
	svc := conversion.NewService(conversion.SettingsFromConfig(cfg), conversion.Deps{
		Ledger:    ledger,
		Jobs:      stores.Jobs,
		Blobs:     blobs,
		Generator: attempter,
		Logger:    logger,
		Metrics:   metrics,
	})

	app := &handlers.App{
		Conversions:    svc,
		Credits:        ledger,
		Metrics:        metrics,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxImageBytes*int64(cfg.MaxImagesPerJob) + 1<<20,
		Ping:           stores.Ping,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		Accounts:       stores.Ledger,
		RateLimit:      cfg.RateLimitPerMin,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("model", client.Model()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: http shutdown failed")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := svc.Dispatcher().Wait(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("api: jobs still running at exit")
	}
	logger.Info().Msg("api: stopped")
}
