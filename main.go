package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"okxflow/config"
	"okxflow/internal/archive"
	"okxflow/internal/pipeline"
	"okxflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	kindsFlag := flag.String("kinds", "aggtrades", "Comma-separated data kinds to dump (trades, aggtrades, swaprate, swaprate-all, klines)")
	symbolsFlag := flag.String("symbols", "", "Comma-separated instrument ids, overrides the configured symbol list")
	startFlag := flag.String("start", "", "First date to dump (YYYY-MM-DD), defaults to symbol availability")
	endFlag := flag.String("end", "", "Last date to dump (YYYY-MM-DD), defaults to yesterday UTC")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *symbolsFlag != "" {
		cfg.Dump.Symbols = splitList(*symbolsFlag)
	}

	kinds, err := parseKinds(*kindsFlag)
	if err != nil {
		log.WithError(err).Error("Invalid kinds flag")
		os.Exit(1)
	}

	start, err := parseDate(*startFlag)
	if err != nil {
		log.WithError(err).Error("Invalid start date")
		os.Exit(1)
	}
	end, err := parseDate(*endFlag)
	if err != nil {
		log.WithError(err).Error("Invalid end date")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Okxflow.Name,
		"version":     cfg.Okxflow.Version,
		"environment": config.AppEnvironment(),
		"asset_class": cfg.Dump.AssetClass,
	}).Info("starting okxflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	dumper, err := pipeline.NewDumper(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to initialize dumper")
		os.Exit(1)
	}

	exitCode := 0
	for _, kind := range kinds {
		summary, err := dumper.Dump(ctx, kind, start, end)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"kind": kind.String()}).Error("dump aborted")
			exitCode = 1
			break
		}
		if summary.Failed > 0 {
			log.WithFields(logger.Fields{
				"kind":   kind.String(),
				"failed": summary.Failed,
				"units":  summary.Units(),
			}).Warn("dump finished with failed units")
			exitCode = 1
		}
	}

	log.Info("okxflow stopped")
	os.Exit(exitCode)
}

func parseKinds(value string) ([]archive.Kind, error) {
	parts := splitList(value)
	if len(parts) == 0 {
		return nil, fmt.Errorf("no kinds given")
	}
	kinds := make([]archive.Kind, 0, len(parts))
	for _, p := range parts {
		k, err := archive.ParseKind(p)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
