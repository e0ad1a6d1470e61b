package main

import (
	"context"
	"os/signal"
	"syscall"

	"storymaker/internal/bootstrap"
	"storymaker/internal/catalog"
	"storymaker/internal/http/handlers"
	httpapi "storymaker/internal/http/httpapi"
	"storymaker/internal/infra"
	"storymaker/internal/infra/geoip"
	"storymaker/internal/middleware"
)

func main() {
	bootstrap.LoadEnv()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer svc.Close()

	universes, err := catalog.Load(cfg.UniversesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load universes")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := handlers.NewApp(svc.Coordinator, svc.Stories, universes, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		DefaultLocale:   middleware.SupportedLocales[0].String(),
		CountryLookup:   resolver.Lookup(),
		RateLimitPerMin: cfg.RateLimitPerMin,
		StoriesDir:      cfg.StoriesDir,
		PublicBasePath:  cfg.PublicBasePath,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("stories_dir", cfg.StoriesDir).
			Bool("synthetic", svc.Gemini.Synthetic()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
