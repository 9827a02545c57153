package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ingest-gateway/internal/config"
	"ingest-gateway/internal/controller"
	"ingest-gateway/internal/handler"
	"ingest-gateway/internal/live"
)

// Application - основное приложение
type Application struct {
	config  *config.Config
	logger  *zap.Logger
	store   controller.StreamStore
	hub     *live.Hub
	service *controller.VideoStreamServiceImpl
	router  http.Handler
	server  *http.Server
}

// NewApplication создает новое приложение с конфигурацией
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	// Выбираем хранилище стримов
	var store controller.StreamStore
	switch cfg.Store {
	case config.StoreRedis:
		store = controller.NewRedisStreamRepository(cfg.Redis)
	case config.StoreMemory:
		store = controller.NewStreamRepository()
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store)
	}

	hub := live.NewHub(logger)
	service := controller.NewVideoStreamService(logger, store, hub, cfg.Video.MaxFrameSize)

	videoStreamHandler := handler.NewVideoStreamHandler(logger, service, cfg.Video)
	autoStreamHandler := handler.NewAutoStreamHandler(logger, service)
	liveHandler := handler.NewLiveHandler(logger, service, hub, cfg.CORS)

	router := NewRouter(videoStreamHandler, autoStreamHandler, liveHandler, service, logger)

	// CORS поверх движка
	var rootHandler http.Handler = router
	if cfg.CORS.Enabled {
		rootHandler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: true,
			MaxAge:           86400,
		}).Handler(router)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      rootHandler,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	return &Application{
		config:  cfg,
		logger:  logger,
		store:   store,
		hub:     hub,
		service: service,
		router:  router,
		server:  server,
	}, nil
}

// Run запускает HTTP сервер и фоновые воркеры. Блокируется до отмены
// контекста или ошибки сервера.
func (app *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
			zap.String("store", app.config.Store))

		var err error
		if app.config.TLS.Cert != "" && app.config.TLS.Key != "" {
			err = app.server.ListenAndServeTLS(app.config.TLS.Cert, app.config.TLS.Key)
		} else {
			err = app.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Std())
		defer cancel()

		app.logger.Info("Stopping HTTP server")
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		return app.store.Close()
	})

	g.Go(func() error {
		controller.StartPurgeWorker(ctx, app.logger,
			app.service,
			app.config.Retention.StoppedTTL.Std(),
			app.config.Retention.SweepInterval.Std())
		return nil
	})

	return g.Wait()
}

// GetService возвращает видеосервис
func (app *Application) GetService() *controller.VideoStreamServiceImpl {
	return app.service
}

// GetRouter возвращает роутер
func (app *Application) GetRouter() http.Handler {
	return app.router
}
