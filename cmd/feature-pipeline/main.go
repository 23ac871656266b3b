package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/cache"
	"github.com/featurepipeline/featurepipeline/internal/compute"
	"github.com/featurepipeline/featurepipeline/internal/config"
	"github.com/featurepipeline/featurepipeline/internal/counterstore"
	"github.com/featurepipeline/featurepipeline/internal/drift"
	"github.com/featurepipeline/featurepipeline/internal/env"
	"github.com/featurepipeline/featurepipeline/internal/kafkaclient"
	"github.com/featurepipeline/featurepipeline/internal/logger"
	"github.com/featurepipeline/featurepipeline/internal/metrics"
	"github.com/featurepipeline/featurepipeline/internal/pipeline"
	"github.com/featurepipeline/featurepipeline/internal/registry"
	"github.com/featurepipeline/featurepipeline/internal/shutdown"
	"github.com/featurepipeline/featurepipeline/internal/store"
)

const inputTopic = "raw-events"

func main() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION")
	logger.New(logLevel)

	configPath, _ := env.GetAsString("FEATURE_CONFIG_PATH", false, "/etc/featurepipeline/features.yaml")
	doc, err := config.Load(configPath)
	if err != nil {
		zap.S().Fatalw("failed to load feature configuration", "path", configPath, "error", err)
	}

	reg, err := registry.New(doc)
	if err != nil {
		zap.S().Fatalw("failed to build feature registry", "error", err)
	}
	zap.S().Infow("loaded feature registry", "version", reg.Version(), "features", reg.FeatureNames())

	redisHost, _ := env.GetAsString("REDIS_HOST", false, "localhost")
	redisPort, _ := env.GetAsInt("REDIS_PORT", false, 6379)
	c := cache.New(cache.Options{Addr: redisHost + ":" + strconv.Itoa(redisPort)})

	postgresConn, _ := env.GetAsString("POSTGRES_CONNECTION_STRING", false, defaultPostgresConnString())
	ctx, cancel := context.WithCancel(context.Background())

	db, err := store.Connect(ctx, postgresConn)
	if err != nil {
		zap.S().Fatalw("failed to connect to the feature store", "error", err)
	}

	counters := counterstore.New(c, db)
	driftDetector := drift.New(c, doc.DriftDetection)
	computer := compute.New(reg, counters, c, driftDetector)

	brokers := strings.Split(mustEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	consumerGroup := mustEnv("CONSUMER_GROUP", "feature-pipeline")
	consumer := kafkaclient.NewConsumer(brokers, []string{inputTopic}, consumerGroup)
	producer, err := kafkaclient.NewProducer(brokers)
	if err != nil {
		zap.S().Fatalw("failed to start kafka producer", "error", err)
	}

	batchSize, _ := env.GetAsInt("BATCH_SIZE", false, 100)
	batchTimeoutSeconds, _ := env.GetAsFloat64("BATCH_TIMEOUT", false, 1.0)

	runner := pipeline.New(consumer, producer, computer, db, pipeline.Config{
		BatchSize:    batchSize,
		BatchTimeout: time.Duration(batchTimeoutSeconds * float64(time.Second)),
	})

	metrics.MustRegisterAll(prometheus.DefaultRegisterer)
	startMetricsServer()
	startHealthCheckServer(consumer, db)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			zap.S().Errorw("kafka consumer stopped with error", "error", err)
		}
	}()

	go runner.Run(ctx)

	shutdown.NewGracefulShutdown(func() error {
		cancel()
		if err := producer.Close(); err != nil {
			zap.S().Warnw("error closing kafka producer", "error", err)
		}
		db.Close()
		return nil
	}).Wait()
}

func startMetricsServer() {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		/* #nosec G114 */
		if err := http.ListenAndServe(":2112", nil); err != nil {
			zap.S().Errorw("metrics server stopped", "error", err)
		}
	}()
}

func startHealthCheckServer(consumer *kafkaclient.Consumer, db *store.Store) {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1_000_000))
	health.AddReadinessCheck("kafka", kafkaclient.ReadinessCheck(consumer))
	health.AddLivenessCheck("kafka", kafkaclient.LivenessCheck(consumer))
	health.AddReadinessCheck("store", func() error {
		if db.Available(context.Background()) {
			return nil
		}
		return errStoreUnavailable
	})
	go func() {
		/* #nosec G114 */
		if err := http.ListenAndServe("0.0.0.0:8086", health); err != nil {
			zap.S().Errorw("healthcheck server stopped", "error", err)
		}
	}()
}

var errStoreUnavailable = errors.New("store unavailable")

func mustEnv(key, fallback string) string {
	v, _ := env.GetAsString(key, false, fallback)
	return v
}

func defaultPostgresConnString() string {
	host, _ := env.GetAsString("POSTGRES_HOST", false, "localhost")
	port, _ := env.GetAsInt("POSTGRES_PORT", false, 5432)
	dbName, _ := env.GetAsString("POSTGRES_DB", false, "featurepipeline")
	user, _ := env.GetAsString("POSTGRES_USER", false, "featurepipeline")
	password, _ := env.GetAsString("POSTGRES_PASSWORD", false, "")
	return "host=" + host + " port=" + strconv.Itoa(port) + " dbname=" + dbName +
		" user=" + user + " password=" + password + " sslmode=disable"
}
