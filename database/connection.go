// Package database provides persistence for the form4-sentinel insider
// trading analysis system.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Support for TimescaleDB hypertables and continuous aggregates
//   - The InsiderRepository with idempotent upsert semantics
//
// Key Concepts:
//   - TimescaleDB hypertables for time-series transaction data
//   - insider_profiles_daily continuous aggregate backing baseline queries
//   - Composite primary keys for hypertable compatibility
//   - A composite unique index enforcing transaction identity
//
// Data models (InsiderTransaction, InsiderAnomaly, etc.) are defined in the
// models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "form4-sentinel/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// PoolConfig bounds the shared connection pool. The pool is the only
// contended resource; every store operation goes through it.
type PoolConfig struct {
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
}

// Connect establishes the database connection using GORM.
func Connect(host string, port int, dbname, user, password string, pool PoolConfig) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable connect_timeout=%d",
		host, port, dbname, user, password, int(pool.AcquireTimeout.Seconds()))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxConns)
	sqlDB.SetMaxIdleConns(pool.MinConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ============================================================================
// Type Aliases
// ============================================================================

// Core data models re-exported so callers can keep importing the database
// package directly.

type InsiderTransaction = models.InsiderTransaction
type InsiderProfile = models.InsiderProfile
type InsiderAnomaly = models.InsiderAnomaly
type InsiderSignal = models.InsiderSignal
type InsiderAlert = models.InsiderAlert
type MonitorWatermark = models.MonitorWatermark
