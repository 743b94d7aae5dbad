// cmd/pipeline/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/aggregate"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/anomaly"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/cache"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/config"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/connector"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/forecast"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/ingest"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/loader"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/pipeline"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/risk"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/store"
)

func main() {
	enrollmentFiles := flag.String("enrollment", "", "comma-separated enrollment CSV files")
	biometricFiles := flag.String("biometric", "", "comma-separated biometric CSV files")
	demographicFiles := flag.String("demographic", "", "comma-separated demographic CSV files")
	skipAnalytics := flag.Bool("skip-analytics", false, "load only, skip the analytics stage")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	input := pipeline.RunInput{
		SourceFiles: map[model.SourceType][]string{
			model.SourceEnrollment:  splitFiles(*enrollmentFiles),
			model.SourceBiometric:   splitFiles(*biometricFiles),
			model.SourceDemographic: splitFiles(*demographicFiles),
		},
		SkipAnalytics: *skipAnalytics,
	}

	if err := run(ctx, cfg, input, logger); err != nil {
		logger.Error("Pipeline run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, input pipeline.RunInput, logger *zap.Logger) error {
	conn, err := connector.NewPostgresConnector(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to sink: %w", err)
	}
	defer conn.Close()

	if err := conn.Validate(); err != nil {
		return fmt.Errorf("sink validation failed: %w", err)
	}

	repo, err := store.NewPostgresRepository(conn, logger)
	if err != nil {
		return err
	}

	resultCache := buildCache(cfg, logger)

	validator, err := ingest.NewValidator(ingest.DefaultReferenceTable(), logger, cfg.Pipeline.RejectLogSample)
	if err != nil {
		return err
	}
	ld, err := loader.NewLoader(repo, logger, cfg.Pipeline.BatchSize)
	if err != nil {
		return err
	}
	aggregator, err := aggregate.NewAggregator(repo, resultCache, logger)
	if err != nil {
		return err
	}
	detector, err := anomaly.NewDetector(cfg.Anomaly, logger)
	if err != nil {
		return err
	}
	forecaster, err := forecast.NewForecaster(cfg.Forecast, logger)
	if err != nil {
		return err
	}
	classifier, err := risk.NewClassifier(cfg.Risk.SnapshotVersion, logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(repo, validator, ld, aggregator, detector, forecaster, classifier, cfg.Pipeline, logger)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, input)
	if result != nil {
		logger.Info("Run summary",
			zap.String("runID", result.RunID),
			zap.Int64("rowsInserted", result.RowsInserted()),
			zap.Int64("rowsRejected", result.RowsRejected()),
			zap.Bool("loadSucceeded", result.LoadSucceeded()),
			zap.Int64("alertsInserted", result.AlertsInserted),
			zap.Int("forecasts", len(result.Forecasts)),
			zap.Int("riskScores", len(result.RiskScores)),
			zap.Int("stageErrors", len(result.StageErrors)),
			zap.Duration("duration", result.Duration))
		for _, se := range result.StageErrors {
			logger.Warn("Stage error",
				zap.String("stage", se.Stage),
				zap.String("key", se.Key),
				zap.Error(se.Err))
		}
	}
	return err
}

// buildCache returns the Redis result cache when configured, otherwise the
// no-op cache. A broken cache never blocks a run.
func buildCache(cfg *config.Config, logger *zap.Logger) cache.ResultCache {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return cache.Disabled{}
	}
	c, err := cache.NewRedisCache(cfg.Redis, logger)
	if err != nil {
		logger.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		return cache.Disabled{}
	}
	return c
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

func splitFiles(list string) []string {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	files := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files
}
