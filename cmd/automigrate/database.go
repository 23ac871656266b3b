package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	connectTimeout = 5 * time.Second
	pingTimeout    = time.Second
	livenessCheck  = 30 * time.Second
)

// SetupDB opens the database, checks that it answers a ping, registers its
// health checks and returns the handle.
func SetupDB(
	PQUser string,
	PQPassword string,
	PWDBName string,
	PQHost string,
	PQPort int,
	health healthcheck.Handler,
	sslmode string) *sql.DB {

	psqlInfo := fmt.Sprintf(
		"host=%s port=%d user=%s "+"password=%s dbname=%s sslmode=%s",
		PQHost,
		PQPort,
		PQUser,
		PQPassword,
		PWDBName,
		sslmode)
	var db *sql.DB
	var err error
	db, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		zap.S().Fatalf("Error opening database: %s", err)
	}

	var ok bool
	if ok, err = IsPostgresSQLAvailable(db); !ok {
		zap.S().Fatalf("Postgres not yet available: %s", err)
	}

	db.SetMaxOpenConns(20)

	// Healthcheck
	health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(db, pingTimeout))

	health.AddLivenessCheck("database", healthcheck.DatabasePingCheck(db, livenessCheck))

	return db
}

// IsPostgresSQLAvailable returns if the database is reachable by PING command
func IsPostgresSQLAvailable(db *sql.DB) (bool, error) {
	var err error
	if db != nil {
		ctx, ctxClose := context.WithTimeout(context.Background(), connectTimeout)
		defer ctxClose()
		err = db.PingContext(ctx)
		if err == nil {
			return true, nil
		}
	}
	return false, err
}

// ShutdownDB closes all database connections
func ShutdownDB(db *sql.DB) {

	zap.S().Infof("Closing database connection")

	if err := db.Close(); err != nil {
		zap.S().Fatalf("Error closing database: %s", err)
	}
}
