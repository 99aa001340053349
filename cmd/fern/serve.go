package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/spreadsheet"
	"github.com/Ramsey-B/fern/pkg/startup"
)

const depHTTP = "http"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	a.withTracing().withDatabase(true).withRedis().withProducer().withGraph()

	checker := health.NewChecker(a.cfg.Version)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	requires := []string{depDatabase}
	if a.cfg.RedisEnabled {
		requires = append(requires, depRedis)
	}
	if a.cfg.KafkaEnabled {
		requires = append(requires, depKafka)
	}
	if a.cfg.GraphEnabled {
		requires = append(requires, depGraph)
	}
	if a.cfg.OTLPEnabled {
		requires = append(requires, depTracing)
	}

	a.startup.AddDependency(startup.Func{
		Name:     depHTTP,
		Requires: requires,
		OnStart: func(context.Context) error {
			a.routes(e, checker)
			go func() {
				a.logger.WithField("port", a.cfg.Port).Info("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.WithError(err).Error("HTTP server stopped")
				}
			}()
			checker.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			checker.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})

	if err := a.start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.stop(shutdownCtx)
	return nil
}

func (a *app) routes(e *echo.Echo, checker *health.Checker) {
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderUserID, middleware.HeaderUserName},
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	checker.AddCheck(depDatabase, true, func(ctx context.Context) error {
		return a.sqlDB.PingContext(ctx)
	})
	if a.redis != nil {
		checker.AddCheck(depRedis, true, a.redis.Ping)
	}
	if a.graph != nil {
		checker.AddCheck(depGraph, false, a.graph.VerifyConnectivity)
	}
	checker.RegisterRoutes(e)
	metrics.RegisterRoutes(e)

	api := e.Group("/api")
	reader := spreadsheet.NewReader(a.cfg.UploadMaxBytes, a.logger)

	var history handlers.History
	if lineage := a.lineage(); lineage != nil {
		history = lineage
	}

	handlers.NewTemplateHandler(a.templates, a.logger).Register(api.Group("/templates"))
	handlers.NewUploadHandler(a.importer(), a.templates, reader, a.logger).Register(api.Group("/uploads"))
	handlers.NewBatchHandler(a.batches, a.results, a.logger).Register(api.Group("/batches"))
	handlers.NewPersonHandler(a.persons, a.results, history, a.logger).Register(api.Group("/persons"))
}
