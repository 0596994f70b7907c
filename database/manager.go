/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

type defaultDatabaseManager struct {
	config    ConnectionConfig
	db        *bun.DB
	sqlDB     *sql.DB
	logger    Logger
	mu        sync.RWMutex
	connected bool
	lastError error
}

// NewDatabaseManager returns a manager for config. Nothing is opened until
// Connect. A nil config falls back to DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	return &defaultDatabaseManager{
		config: *config,
		logger: GetLogger(),
	}
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}

	sqlDB, db, err := dm.createConnection()
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	dm.sqlDB, dm.db = sqlDB, db
	dm.configureConnectionPool()

	timeout := dm.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := dm.db.PingContext(ctxTimeout); err != nil {
		dm.lastError = err
		_ = dm.db.Close()
		dm.db, dm.sqlDB = nil, nil
		return fmt.Errorf("database connection test failed: %w", err)
	}

	dm.connected = true
	dm.lastError = nil
	dm.logger.Info("Database connected", "type", dm.config.NormalizedType(), "address", dm.displayAddress(),
		"database", dm.config.DBName, "user", dm.config.Username)
	return nil
}

func (dm *defaultDatabaseManager) displayAddress() string {
	if dm.config.NormalizedType() == TypeSQLite {
		return "local"
	}
	return dm.config.Address()
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	driverName, dsn, err := dm.config.DSN()
	if err != nil {
		return nil, nil, err
	}

	var dialect schema.Dialect
	switch dm.config.NormalizedType() {
	case TypeMySQL:
		dialect = mysqldialect.New()
	case TypePostgres:
		dialect = pgdialect.New()
	case TypeSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dm.config.Type)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, err
	}
	db := bun.NewDB(sqlDB, dialect)

	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.WithWriter(NewRedactingWriter(os.Stderr, dm.config.NormalizedType())),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	db.AddQueryHook(&QueryHook{Logger: dm.logger, SlowTime: dm.config.SlowQueryTime})

	return sqlDB, db, nil
}

func (dm *defaultDatabaseManager) configureConnectionPool() {
	if dm.sqlDB == nil {
		return
	}
	if dm.config.NormalizedType() == TypeSQLite {
		// every sqlite connection to :memory: opens its own empty database
		dm.sqlDB.SetMaxOpenConns(1)
		dm.sqlDB.SetMaxIdleConns(1)
		dm.sqlDB.SetConnMaxLifetime(0)
		return
	}
	dm.sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	dm.sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	dm.sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db = nil
	dm.sqlDB = nil
	dm.connected = false

	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Debug("Database connection closed", "database", dm.config.DBName)
	}
	return err
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db := dm.db
	dm.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultDatabaseManager) GetConfig() ConnectionConfig {
	return dm.config
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.connected,
	}

	if dm.db == nil {
		status.LastError = "Database not initialized"
		if dm.lastError != nil {
			status.LastError = dm.lastError.Error()
		}
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := dm.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.Connected = false
		status.LastError = err.Error()
		dm.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		dm.lastError = nil
	}

	stats := dm.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}

	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context, items ...MigrationItem) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	mm := NewMigrationManager(db, dm.logger)
	mm.Register(items...)
	return mm.RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if logger == nil {
		logger = NopLogger()
	}
	dm.logger = logger
}
