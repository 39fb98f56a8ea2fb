package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	mid "TrainCtl/internal/middleware"
	"TrainCtl/internal/service/ratelimit"
	"TrainCtl/internal/usecase"
	"TrainCtl/pkg/cache"
	pkgch "TrainCtl/pkg/clickhouse"
	"TrainCtl/pkg/config"
	xhttp "TrainCtl/pkg/http"
	pkgkafka "TrainCtl/pkg/kafka"
	applogger "TrainCtl/pkg/logger"

	"github.com/labstack/echo/v4"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	ctl         *usecase.TrafficController
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	limiter     *ratelimit.Limiter
	pipeline    *mid.HistoryPipeline
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	producer    *pkgkafka.Producer
	chClient    *pkgch.Client
	decisions   cache.Service
}

// New creates a new App instance. Optional parts are attached with setters.
func New(cfg *config.Config, l *applogger.Logger, ctl *usecase.TrafficController, h xhttp.Handler) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, log: l, ctl: ctl, httpHandler: h}
}

func (a *App) SetRateLimiter(l *ratelimit.Limiter) { a.limiter = l }

func (a *App) SetHistoryPipeline(p *mid.HistoryPipeline) { a.pipeline = p }

// SetConsumer attaches the Kafka consumer and the handler it feeds.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// SetClosers hands over infrastructure clients released on shutdown. Nil
// values are skipped.
func (a *App) SetClosers(producer *pkgkafka.Producer, ch *pkgch.Client, decisions cache.Service) {
	a.producer = producer
	a.chClient = ch
	a.decisions = decisions
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := a.ctl.WarmUp(ctx)
	if err != nil {
		a.log.Warn("state warm-up failed", applogger.Error(err))
	} else if n > 0 {
		a.log.Info("state restored from mirror", applogger.Int("trains", n))
	}

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("history pipeline started")
	}

	var mws []echo.MiddlewareFunc
	if a.limiter != nil {
		mws = append(mws, ratelimit.Middleware(a.limiter))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true, a.cfg.Server.CORSOrigins...),
		xhttp.WithMetricsPath(a.metricsPath()),
		xhttp.WithMiddleware(mws...),
		xhttp.WithLogger(a.log),
	)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var runErr error
	select {
	case <-sigCh:
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
		a.log.Error("http server failed", applogger.Error(runErr))
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) metricsPath() string {
	if !a.cfg.Metrics.Enabled {
		return ""
	}
	return a.cfg.Metrics.Path
}

// shutdown stops intake first, then drains the history pipeline, then
// releases clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.pipeline != nil {
		if err := a.pipeline.Stop(ctx); err != nil {
			a.log.Warn("history pipeline stop error", applogger.Error(err), applogger.Int("pending", a.pipeline.Pending()))
			errs = append(errs, err)
		}
	}

	// flush collected logs while the producer is still open
	a.log.RemoveCollector()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.decisions != nil {
		if err := a.decisions.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
