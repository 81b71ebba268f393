package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sokofone/ms-go-airtime/app/controller"
	"github.com/sokofone/ms-go-airtime/app/credential"
	"github.com/sokofone/ms-go-airtime/app/daraja"
	"github.com/sokofone/ms-go-airtime/app/provider"
	"github.com/sokofone/ms-go-airtime/app/repository"
	"github.com/sokofone/ms-go-airtime/app/service"
	"github.com/sokofone/ms-go-airtime/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the Echo HTTP server for top-up initiation, rail callbacks, and bonus management.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, services, cleanup := mustCreateServices()
	defer cleanup()

	topupController := controller.NewTopupController(services.engine, services.bonuses, services.reversals)
	e := setupHTTPServer(topupController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(topupController *controller.TopupController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	e.GET("/", topupController.Health)
	e.GET("/ping", topupController.Ping)

	e.POST("/stk-push", topupController.InitiateTopup, perMinuteRateLimit(20))
	e.GET("/transaction-status/:id", topupController.GetTransactionStatus)

	callbacks := perMinuteRateLimit(100)
	e.POST("/stk-callback", topupController.PaymentCallback, callbacks)
	e.POST("/daraja-reversal-result", topupController.ReversalResult, callbacks)
	e.POST("/daraja-reversal-timeout", topupController.ReversalTimeout, callbacks)

	bonuses := e.Group("/api/airtime-bonuses")
	bonuses.GET("/current", topupController.GetBonusSettings)
	bonuses.POST("/update", topupController.UpdateBonusSettings)

	return e
}

// perMinuteRateLimit throttles by client IP.
func perMinuteRateLimit(perMinute int) echo.MiddlewareFunc {
	return echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStoreWithConfig(
		echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(perMinute) / 60.0),
			Burst:     perMinute,
			ExpiresIn: 3 * time.Minute,
		},
	))
}

type services struct {
	engine    *service.TopupEngine
	bonuses   *service.BonusService
	reversals *service.ReversalService
	reconcile *service.ReconcileService
}

func mustCreateServices() (*config.Config, *services, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	txnRepo := repository.NewTransactionRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	errorRepo := repository.NewErrorLogRepository(db)
	reversalRepo := repository.NewReversalRepository(db)
	bonusRepo := repository.NewBonusRepository(db)
	floatRepo := repository.NewFloatRepository(db)

	railClient, err := daraja.NewClient(cfg.Daraja, credential.NewCache())
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialize payment rail client")
	}

	dealer := provider.NewSafaricomDealer(cfg.Dealer, credential.NewCache(), bonusRepo)
	aggregator := provider.NewAfricastalking(cfg.Aggregator)
	registry := provider.NewRegistry(dealer, aggregator)

	bonusService := service.NewBonusService(bonusRepo)
	dispatchService := service.NewDispatchService(registry, floatRepo, errorRepo)
	reversalService := service.NewReversalService(txnRepo, reversalRepo, errorRepo, railClient)
	notifier := service.NewNotifier(cfg.Notify, errorRepo)

	engine := service.NewTopupEngine(txnRepo, saleRepo, errorRepo, railClient,
		dispatchService, bonusService, reversalService, notifier, cfg.Engine)
	reconcile := service.NewReconcileService(txnRepo, errorRepo, engine, notifier, cfg.Jobs)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, &services{
		engine:    engine,
		bonuses:   bonusService,
		reversals: reversalService,
		reconcile: reconcile,
	}, cleanup
}
