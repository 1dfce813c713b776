package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/climet-eu/corsbridge/internal/cors"
	"github.com/climet-eu/corsbridge/internal/infrastructure/config"
	"github.com/climet-eu/corsbridge/internal/infrastructure/logging"
	"github.com/climet-eu/corsbridge/internal/infrastructure/monitoring"
	"github.com/climet-eu/corsbridge/internal/providers/http/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

func main() {
	// Handle interrupts by cancelling in-flight requests
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "corsfetch:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Parse flags
	fs := flag.NewFlagSet("corsfetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	method := fs.String("method", http.MethodGet, "HTTP method")
	pageOrigin := fs.String("origin", "", "Page origin (overrides CORS_PAGE_ORIGIN)")
	proxyURL := fs.String("proxy", "", "CORS proxy URL (overrides CORS_PROXY_URL)")
	timeout := fs.Duration("timeout", 0, "Request timeout (overrides HTTP_TIMEOUT)")
	bearer := fs.String("bearer", "", "Bearer token sent with every request")
	var headers []string
	fs.Func("H", "Extra request header `Name: value` (repeatable)", func(v string) error {
		if !strings.Contains(v, ":") {
			return fmt.Errorf("header %q: want Name: value", v)
		}
		headers = append(headers, v)
		return nil
	})
	dev := fs.Bool("dev", false, "Development logging")
	dumpMetrics := fs.Bool("metrics", false, "Print Prometheus metrics when done")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: corsfetch [flags] URL...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing URL")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *pageOrigin != "" {
		cfg.CORS.PageOrigin = *pageOrigin
	}
	if *proxyURL != "" {
		cfg.CORS.ProxyURL = *proxyURL
	}

	logger := newLogger(cfg.Logging, *dev)
	defer logger.Sync()
	log := logger.Component("corsfetch")

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	c, err := client.NewClient(cfg, logger.Logger, metrics)
	if err != nil {
		return err
	}
	for _, h := range headers {
		name, value, _ := strings.Cut(h, ":")
		c.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if *timeout > 0 {
		c.SetTimeout(*timeout)
	}
	if *bearer != "" {
		c.SetBearerAuth(*bearer)
	}
	log.Debug("Client ready",
		zap.String("page_origin", c.Resolver().PageOrigin()),
		zap.String("proxy", c.Resolver().ProxyBase()))

	failed := 0
	for _, raw := range fs.Args() {
		resp, err := c.Do(ctx, strings.ToUpper(*method), raw)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "%s\terror\t%v\n", raw, err)
			continue
		}
		route := cors.DecisionDirect
		if c.Resolver().Capability(raw) == cors.Unsupported {
			route = cors.DecisionProxied
		}
		fmt.Fprintf(stdout, "%s\t%s\t%d\t%d bytes\n", raw, route, resp.StatusCode(), len(resp.Body()))
	}

	snap := metrics.Snapshot()
	log.Info("Run complete",
		zap.Int64("requests", snap.Requests),
		zap.Int64("request_errors", snap.RequestErrors),
		zap.Int64("origins_supported", snap.OriginsSupported),
		zap.Int64("origins_proxied", snap.OriginsProxied),
		zap.Int64("statuses_unmasked", snap.StatusesUnmasked),
		zap.Any("breakers", c.BreakerStates()))

	if *dumpMetrics {
		families, err := reg.Gather()
		if err != nil {
			return fmt.Errorf("gather metrics: %w", err)
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(stdout, mf); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, fs.NArg())
	}
	return nil
}

// newLogger builds the logger from config. An unparseable LOG_LEVEL falls
// back to the default production logger.
func newLogger(cfg config.LogConfig, dev bool) *logging.Logger {
	if dev {
		return logging.NewDevelopment()
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.Level,
		Development: cfg.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Invalid log level, using info", zap.String("level", cfg.Level), zap.Error(err))
	}
	return logger
}
