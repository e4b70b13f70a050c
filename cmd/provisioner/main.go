package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	pg "github.com/cloudfusionadmin/filevaults/pkg/database/postgres"
	"github.com/cloudfusionadmin/filevaults/pkg/metrics"
	"github.com/cloudfusionadmin/filevaults/pkg/payment"
	payment_memory "github.com/cloudfusionadmin/filevaults/pkg/payment/memory"
	"github.com/cloudfusionadmin/filevaults/pkg/payment/stripe"
	"github.com/cloudfusionadmin/filevaults/pkg/provision"
	async_cleanup "github.com/cloudfusionadmin/filevaults/pkg/provision/async/cleanup"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data"
	provision_server "github.com/cloudfusionadmin/filevaults/pkg/provision/server"
)

type appConfig struct {
	AppName       string `mapstructure:"app_name"`
	LogLevel      string `mapstructure:"log_level"`
	ListenAddress string `mapstructure:"listen_address"`

	DatabaseUrl          string `mapstructure:"database_url"`
	DbMaxOpenConnections int    `mapstructure:"db_max_open_connections"`
	DbMaxIdleConnections int    `mapstructure:"db_max_idle_connections"`

	StripeApiKey string `mapstructure:"stripe_api_key"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

var defaultConfig = appConfig{
	AppName:       "provisioner",
	LogLevel:      "info",
	ListenAddress: ":8085",

	DbMaxOpenConnections: 16,
	DbMaxIdleConnections: 8,

	CleanupInterval:     time.Minute,
	ShutdownGracePeriod: 25 * time.Second,
}

var configPath = flag.String("config", "config.yaml", "configuration file path")

func main() {
	flag.Parse()

	log := logrus.StandardLogger().WithField("type", "provisioner/main")

	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to
	// search for a default config file because one hasn't been explicitly
	// set, so check the explicit path ourselves.
	if _, err := os.Stat(*configPath); err == nil {
		viper.SetConfigFile(*configPath)
	} else if !os.IsNotExist(err) {
		log.WithError(err).Error("failed to check if config exists")
		os.Exit(1)
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		log.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.WithError(err).Error("failed to unmarshal config")
		os.Exit(1)
	}

	configureLogger(config)

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			log.WithError(err).Error("error connecting to new relic")
			os.Exit(1)
		}

		metricsProvider = nr
	}

	var dataProvider data.Provider
	if len(config.DatabaseUrl) > 0 {
		db, err := pg.New(config.DatabaseUrl, config.DbMaxOpenConnections, config.DbMaxIdleConnections)
		if err != nil {
			log.WithError(err).Error("failed to connect to postgres")
			os.Exit(1)
		}
		defer db.Close()

		dataProvider = data.NewDatabaseProvider(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		dataProvider = data.NewTestDataProvider()
	}

	var gateway payment.Gateway
	if len(config.StripeApiKey) > 0 {
		gateway = stripe.New(config.StripeApiKey)
	} else {
		log.Warn("no stripe api key configured, using in-memory payment gateway")
		gateway = payment_memory.New()
	}

	coordinator := provision.NewCoordinator(dataProvider, gateway, provision.WithEnvConfigs())

	mux := http.NewServeMux()
	for path, handler := range provision_server.NewProvisionServer(coordinator).GetHandlers() {
		if metricsProvider != nil {
			mux.HandleFunc(newrelic.WrapHandleFunc(metricsProvider, path, handler))
		} else {
			mux.HandleFunc(path, handler)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	serviceCtx := ctx
	if metricsProvider != nil {
		serviceCtx = metrics.NewContext(ctx, metricsProvider)
	}

	cleanupService := async_cleanup.New(dataProvider, gateway, async_cleanup.WithEnvConfigs())
	go func() {
		err := cleanupService.Start(serviceCtx, config.CleanupInterval)
		if err != nil && err != context.Canceled {
			log.WithError(err).Warn("cleanup service terminated unexpectedly")
		}
	}()

	httpServer := &http.Server{
		Addr:    config.ListenAddress,
		Handler: mux,
	}

	serverShutdownCh := make(chan struct{})
	go func() {
		log.WithField("address", config.ListenAddress).Info("serving http")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http serve stopped")
		}
		close(serverShutdownCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("interrupt received, shutting down")
	case <-serverShutdownCh:
		log.Info("http server shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop http server")
	}
}

func configureLogger(config appConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}
}
