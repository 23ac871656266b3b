// Package api implements the feature read API (spec.md §6's "external
// collaborator"): a cache-first, database-fallback read path over the
// same store and cache the pipeline writes to, grounded on
// original_source/feature-processor/api.py.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/metrics"
)

const cacheTTL = 5 * time.Minute

// featureCache is the slice of cache.Cache the API needs.
type featureCache interface {
	GetString(ctx context.Context, key string) (string, bool)
	SetString(ctx context.Context, key, value string, ttl time.Duration)
}

// featureStore is the slice of store.Store the API needs.
type featureStore interface {
	LatestFeatures(ctx context.Context, userID string) (map[string]float64, time.Time, error)
	SingleFeature(ctx context.Context, userID, featureName string) (float64, time.Time, error)
}

// Server wires the cache and store into gin handlers.
type Server struct {
	cache     featureCache
	store     featureStore
	isNoRows  func(error) bool
	available func(ctx context.Context) bool
	dbHealthy func(ctx context.Context) bool
}

// New builds a Server. isNoRows classifies a store error as "no rows for
// this user" (store.ErrNoRows), cacheHealthy/dbHealthy back the /health
// endpoint.
func New(c featureCache, s featureStore, isNoRows func(error) bool, cacheHealthy, dbHealthy func(ctx context.Context) bool) *Server {
	return &Server{cache: c, store: s, isNoRows: isNoRows, available: cacheHealthy, dbHealthy: dbHealthy}
}

// Router builds the gin engine serving /health, /features/:user_id,
// /features/:user_id/:feature_name and /metrics. registerer receives this
// package's Prometheus collectors; pass prometheus.DefaultRegisterer
// unless the caller keeps its own registry.
func (s *Server) Router(registerer prometheus.Registerer) *gin.Engine {
	registerMetrics(registerer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/", s.index)
	router.GET("/health", s.health)
	router.GET("/features/:user_id", s.getFeatures)
	router.GET("/features/:user_id/:feature_name", s.getSingleFeature)
	router.GET("/metrics", metricsHandler())
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.S().Debugw("api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "feature-api",
		"endpoints": gin.H{
			"/health":                           "health check",
			"/features/:user_id":                "all features for a user",
			"/features/:user_id/:feature_name":  "one feature for a user",
			"/metrics":                          "prometheus metrics",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	cacheStatus := "healthy"
	if !s.available(c.Request.Context()) {
		cacheStatus = "unhealthy"
	}
	dbStatus := "healthy"
	if !s.dbHealthy(c.Request.Context()) {
		dbStatus = "unhealthy"
	}
	status := http.StatusOK
	overall := "healthy"
	if cacheStatus != "healthy" || dbStatus != "healthy" {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    overall,
		"redis":     cacheStatus,
		"database":  dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type cachedFeature struct {
	Value      float64   `json:"value"`
	ComputedAt time.Time `json:"computed_at"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *Server) getFeatures(c *gin.Context) {
	userID := c.Param("user_id")
	stop := prometheusTimer("/features/:user_id")
	defer func() { stop(c.Writer.Status()) }()

	cacheKey := "features:" + userID
	if cached, ok := s.cache.GetString(c.Request.Context(), cacheKey); ok {
		var features map[string]cachedFeature
		if err := json.Unmarshal([]byte(cached), &features); err == nil {
			metrics.CacheHits.Inc()
			c.JSON(http.StatusOK, gin.H{
				"user_id":   userID,
				"features":  features,
				"source":    "cache",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}
	metrics.CacheMisses.Inc()

	values, latest, err := s.store.LatestFeatures(c.Request.Context(), userID)
	if err != nil {
		if s.isNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		zap.S().Errorw("failed to fetch features", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	features := make(map[string]cachedFeature, len(values))
	for name, v := range values {
		features[name] = cachedFeature{Value: v, ComputedAt: latest}
	}
	if encoded, err := json.Marshal(features); err == nil {
		s.cache.SetString(c.Request.Context(), cacheKey, string(encoded), cacheTTL)
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   userID,
		"features":  features,
		"source":    "database",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getSingleFeature(c *gin.Context) {
	userID := c.Param("user_id")
	featureName := c.Param("feature_name")
	stop := prometheusTimer("/features/:user_id/:feature_name")
	defer func() { stop(c.Writer.Status()) }()

	cacheKey := "feature:" + userID + ":" + featureName
	if cached, ok := s.cache.GetString(c.Request.Context(), cacheKey); ok {
		if value, err := strconv.ParseFloat(cached, 64); err == nil {
			metrics.CacheHits.Inc()
			c.JSON(http.StatusOK, gin.H{
				"user_id":      userID,
				"feature_name": featureName,
				"value":        value,
				"source":       "cache",
			})
			return
		}
	}
	metrics.CacheMisses.Inc()

	value, computedAt, err := s.store.SingleFeature(c.Request.Context(), userID, featureName)
	if err != nil {
		if s.isNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		zap.S().Errorw("failed to fetch feature", "error", err, "user_id", userID, "feature_name", featureName)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.cache.SetString(c.Request.Context(), cacheKey, formatFloat(value), cacheTTL)

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"feature_name": featureName,
		"value":        value,
		"computed_at":  computedAt.UTC().Format(time.RFC3339),
		"source":       "database",
	})
}
