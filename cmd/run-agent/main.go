// Command run-agent polls the release management admin service for ready,
// signed-off scheduled changes and enacts them, once or on an interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mozilla-releng/balrogagent/internal/adminclient"
	"github.com/mozilla-releng/balrogagent/internal/config"
	"github.com/mozilla-releng/balrogagent/internal/cycle"
	"github.com/mozilla-releng/balrogagent/internal/otelsetup"
	"github.com/mozilla-releng/balrogagent/internal/telemetryoracle"
	"github.com/mozilla-releng/balrogagent/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		adminURL     = flag.String("admin-url", "", "admin service base URL")
		telemetryURL = flag.String("telemetry-url", "", "telemetry service base URL")
		clientID     = flag.String("client-id", "", "OAuth2 client id")
		clientSecret = flag.String("client-secret", "", "OAuth2 client secret")
		audience     = flag.String("audience", "", "OAuth2 audience")
		tokenURL     = flag.String("token-url", "", "OAuth2 token endpoint")
		interval     = flag.Duration("interval", 5*time.Minute, "polling interval")
		once         = flag.Bool("once", false, "run one cycle and exit")
		logLevel     = flag.String("log-level", "", "debug/info/warn/error")
		logFormat    = flag.String("log-format", "", "json/text")
		otelEndpoint = flag.String("otel-endpoint", "", "OTLP/gRPC collector endpoint (empty = stdout export)")
		configFile   = flag.String("config-file", "", "optional JSON/YAML config file, overridden by flags")
	)
	flag.Parse()

	opts := []config.Option{}
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *adminURL != "" {
		opts = append(opts, config.WithAdminURL(*adminURL))
	}
	if *telemetryURL != "" {
		opts = append(opts, config.WithTelemetryURL(*telemetryURL))
	}
	if *clientID != "" || *clientSecret != "" || *audience != "" || *tokenURL != "" {
		opts = append(opts, config.WithCredentials(config.ClientCredentials{
			ClientID:     *clientID,
			ClientSecret: *clientSecret,
			Audience:     *audience,
			TokenURL:     *tokenURL,
		}))
	}
	if flagSeen("interval") {
		opts = append(opts, config.WithInterval(*interval))
	}
	if *once {
		opts = append(opts, config.WithOnce(true))
	}
	if *logLevel != "" {
		opts = append(opts, config.WithLogLevel(*logLevel))
	}
	if *logFormat != "" {
		opts = append(opts, config.WithLogFormat(*logFormat))
	}
	if *otelEndpoint != "" {
		opts = append(opts, config.WithOTELEndpoint(*otelEndpoint))
	}

	cfg, err := config.NewConfig(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return 1
	}

	log := logger.New("balrogagent", cfg.LogLevel, cfg.LogFormat)

	otelProviders, err := otelsetup.Setup(context.Background(), "balrogagent", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to set up OpenTelemetry", map[string]interface{}{"error": err.Error()})
		return 1
	}
	defer func() {
		if err := otelProviders.Shutdown(5 * time.Second); err != nil {
			log.Warn("OpenTelemetry shutdown reported errors", map[string]interface{}{"error": err.Error()})
		}
	}()

	client, err := adminclient.New(cfg.Credentials, cfg.AdminURL, log)
	if err != nil {
		log.Error("failed to build admin client", map[string]interface{}{"error": err.Error()})
		return 1
	}

	oracle := telemetryoracle.New(cfg.TelemetryURL)

	driver, err := cycle.New(client, oracle.Fetch, log)
	if err != nil {
		log.Error("failed to build cycle driver", map[string]interface{}{"error": err.Error()})
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Once {
		if _, err := driver.RunOnce(ctx); err != nil {
			log.Error("cycle failed", map[string]interface{}{"error": err.Error()})
			return 1
		}
		return 0
	}

	if err := driver.Run(ctx, cfg.Interval); err != nil {
		log.Error("agent stopped on fatal error", map[string]interface{}{"error": err.Error()})
		return 1
	}
	return 0
}

func flagSeen(name string) bool {
	seen := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			seen = true
		}
	})
	return seen
}
