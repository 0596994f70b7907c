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
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// MemoryDBName selects a private in-memory sqlite database.
const MemoryDBName = ":memory:"

// AbstractDatabaseManager owns one bun connection pool.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	GetConfig() ConnectionConfig
	RunMigrations(ctx context.Context, items ...MigrationItem) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to reach one SQL database.
type ConnectionConfig struct {
	Type            string        `yaml:"type" json:"type"` // postgres, mysql, sqlite
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"-"`
	DBName          string        `yaml:"dbname" json:"dbname"`
	SSLMode         string        `yaml:"sslmode" json:"sslmode"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	EnableQueryLog  bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime   time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
}

// DefaultConnectionConfig returns a small pool suited to a short-lived process.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Minute * 10,
		ConnectTimeout:  time.Second * 10,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		SlowQueryTime:   time.Second * 2,
	}
}

// NormalizedType folds driver aliases into TypeMySQL, TypePostgres or TypeSQLite.
func (c *ConnectionConfig) NormalizedType() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "postgresql", "pg":
		return TypePostgres
	case "mysql", "mariadb":
		return TypeMySQL
	case "sqlite", "sqlite3":
		return TypeSQLite
	}
	return strings.ToLower(c.Type)
}

// Address returns host:port, applying the default port for the type.
func (c *ConnectionConfig) Address() string {
	port := c.Port
	if port == 0 {
		switch c.NormalizedType() {
		case TypePostgres:
			port = 5432
		case TypeMySQL:
			port = 3306
		}
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// WithDatabase returns a copy pointed at another database on the same server.
func (c ConnectionConfig) WithDatabase(name string) ConnectionConfig {
	c.DBName = name
	return c
}

// WithCredential returns a copy that logs in as another user.
func (c ConnectionConfig) WithCredential(username, password string) ConnectionConfig {
	c.Username = username
	c.Password = password
	return c
}

// DSN returns the database/sql driver name and data source for the config.
func (c *ConnectionConfig) DSN() (driverName string, dsn string, err error) {
	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch c.NormalizedType() {
	case TypeMySQL:
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = c.Address()
		mc.DBName = c.DBName
		mc.ParseTime = true
		mc.Timeout = timeout
		mc.ReadTimeout = c.ReadTimeout
		mc.WriteTimeout = c.WriteTimeout
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return "mysql", mc.FormatDSN(), nil
	case TypePostgres:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.Username, c.Password),
			Host:   c.Address(),
			Path:   "/" + c.DBName,
		}
		q := url.Values{}
		q.Set("sslmode", sslMode)
		q.Set("connect_timeout", strconv.Itoa(int(timeout.Seconds())))
		u.RawQuery = q.Encode()
		return "postgres", u.String(), nil
	case TypeSQLite:
		if c.DBName == "" || c.DBName == MemoryDBName {
			return sqliteshim.ShimName, "file::memory:", nil
		}
		return sqliteshim.ShimName, fmt.Sprintf("file:%s.db?cache=shared", c.DBName), nil
	}
	return "", "", fmt.Errorf("unsupported database type: %s", c.Type)
}
