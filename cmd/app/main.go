package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/velofit/velofit/internal/app"
	"github.com/velofit/velofit/internal/config"
	"github.com/velofit/velofit/internal/logging"
	"github.com/velofit/velofit/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	if exists, err := pkg.PathExists(*configPath, false); err != nil || !exists {
		log.Fatalf("config file not found at: %s", *configPath)
	}

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "velofit-client",
	})

	log.Debugf("using backend: [%s]", cfg.APIBaseURL)
	log.Debugf("using logs path: [%s]", cfg.LogsPath)

	apiKey := os.Getenv("VELOFIT_API_KEY")
	if apiKey == "" {
		log.Errorf("backend api key not set, use VELOFIT_API_KEY env var to set it")
	}

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	a, err := app.NewApp(app.NewAppParams{
		Config:         cfg,
		APIKey:         apiKey,
		TracingEnabled: tracingEnabled,
	})
	if err != nil {
		log.Fatalf("new app: %s", err)
	}

	a.Serve()
	a.Session.StartAutoRefresh(ctx)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	a.GracefulShutdown()
}
