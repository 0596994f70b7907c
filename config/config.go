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

// Package config loads the grantor run configuration from a YAML file and
// GRANTOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/secrets"
	"github.com/tomoncle/grantor/types"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given; it may be absent.
const DefaultPath = "configs/grantor.yaml"

const (
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

const (
	IfExistsFail = "fail"
	IfExistsSkip = "skip"
)

// Config is one provisioning run.
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	Admin   types.AdminCredential `yaml:"admin"`
	User    UserConfig            `yaml:"user"`
	Verify  bool                  `yaml:"verify"`
	Journal JournalConfig         `yaml:"journal"`
	Log     LogConfig             `yaml:"log"`
}

// ServerConfig locates the database server to provision.
type ServerConfig struct {
	Type string `yaml:"type"` // mongodb, postgres, mysql
	// URI is a full mongodb:// connection string; Host and Port are ignored when set.
	URI            string        `yaml:"uri"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	SSLMode        string        `yaml:"sslmode"`
	AdminDatabase  string        `yaml:"admin_database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	EnableQueryLog bool          `yaml:"enable_query_log"`
}

// UserConfig is the application user plus what to do when it already exists.
type UserConfig struct {
	types.AppCredential `yaml:",inline"`
	IfExists            string `yaml:"if_exists"` // fail, skip
}

// JournalConfig selects where provisioning attempts are recorded.
type JournalConfig struct {
	Enabled bool                      `yaml:"enabled"`
	Store   database.ConnectionConfig `yaml:"store"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	FileEnabled bool   `yaml:"file_enabled"`
	FileDir     string `yaml:"file_dir"`
}

// Default returns the configuration of the stock bootstrap: admin/admin on a
// local MongoDB creating video_user with readWrite on video_agent.
// Passwords are left empty.
func Default() *Config {
	store := database.DefaultConnectionConfig()
	store.Type = database.TypeSQLite
	store.DBName = "grantor"

	return &Config{
		Server: ServerConfig{
			Type:           BackendMongoDB,
			Host:           "localhost",
			ConnectTimeout: 10 * time.Second,
		},
		Admin: types.AdminCredential{
			Username:     "admin",
			AuthDatabase: types.DefaultAuthDatabase,
		},
		User: UserConfig{
			AppCredential: types.AppCredential{
				Username: "video_user",
				Database: "video_agent",
			},
			IfExists: IfExistsFail,
		},
		Journal: JournalConfig{Store: *store},
		Log:     LogConfig{Level: "info", Format: "text", FileDir: "logs"},
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment, in that order. A missing file is an error unless path is
// empty or DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	overrideFromEnv(cfg)
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("GRANTOR_SERVER_TYPE", &cfg.Server.Type)
	setString("GRANTOR_SERVER_URI", &cfg.Server.URI)
	setString("GRANTOR_SERVER_HOST", &cfg.Server.Host)
	if v := os.Getenv("GRANTOR_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	setString("GRANTOR_SERVER_SSLMODE", &cfg.Server.SSLMode)
	setString("GRANTOR_SERVER_ADMIN_DATABASE", &cfg.Server.AdminDatabase)
	if v := os.Getenv("GRANTOR_SERVER_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ConnectTimeout = d
		}
	}
	setBool("GRANTOR_SERVER_ENABLE_QUERY_LOG", &cfg.Server.EnableQueryLog)

	setString("GRANTOR_ADMIN_USERNAME", &cfg.Admin.Username)
	setString("GRANTOR_ADMIN_PASSWORD", &cfg.Admin.Password)
	setString("GRANTOR_ADMIN_AUTH_DATABASE", &cfg.Admin.AuthDatabase)

	setString("GRANTOR_USER_USERNAME", &cfg.User.Username)
	setString("GRANTOR_USER_PASSWORD", &cfg.User.Password)
	setString("GRANTOR_USER_DATABASE", &cfg.User.Database)
	setString("GRANTOR_USER_IF_EXISTS", &cfg.User.IfExists)
	if v := os.Getenv("GRANTOR_USER_ROLES"); v != "" {
		cfg.User.Roles = ParseGrants(v)
	}

	setBool("GRANTOR_VERIFY", &cfg.Verify)
	setBool("GRANTOR_JOURNAL_ENABLED", &cfg.Journal.Enabled)
	database.OverrideFromEnv("GRANTOR_JOURNAL_DB_", &cfg.Journal.Store)

	setString("GRANTOR_LOG_LEVEL", &cfg.Log.Level)
	setString("GRANTOR_LOG_FORMAT", &cfg.Log.Format)
	setBool("GRANTOR_FILE_LOG_ENABLED", &cfg.Log.FileEnabled)
	setString("GRANTOR_FILE_LOG_DIR", &cfg.Log.FileDir)
}

// ParseGrants reads "role@db,role@db"; a grant without "@db" applies to the
// user's own database.
func ParseGrants(s string) []types.RoleGrant {
	var grants []types.RoleGrant
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		role, db, _ := strings.Cut(part, "@")
		grants = append(grants, types.RoleGrant{Role: strings.TrimSpace(role), Database: strings.TrimSpace(db)})
	}
	return grants
}

// NormalizedType folds aliases (mongo, postgresql, pg, mariadb) into the
// Backend* constants.
func (s ServerConfig) NormalizedType() string {
	switch strings.ToLower(s.Type) {
	case "mongodb", "mongo":
		return BackendMongoDB
	case "postgres", "postgresql", "pg":
		return BackendPostgres
	case "mysql", "mariadb":
		return BackendMySQL
	}
	return strings.ToLower(s.Type)
}

// Address returns host:port with the backend's default port.
func (s ServerConfig) Address() string {
	port := s.Port
	if port == 0 {
		switch s.NormalizedType() {
		case BackendMongoDB:
			port = 27017
		case BackendPostgres:
			port = 5432
		case BackendMySQL:
			port = 3306
		}
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// Target is where the server is for logs and the journal, with any URI
// password masked.
func (s ServerConfig) Target() string {
	if s.URI == "" {
		return s.Address()
	}
	u, err := url.Parse(s.URI)
	if err != nil {
		return "<invalid uri>"
	}
	return u.Redacted()
}

// GetAdminDatabase is the database the administrative SQL session opens:
// "postgres" for PostgreSQL, none for MySQL.
func (s ServerConfig) GetAdminDatabase() string {
	if s.AdminDatabase != "" {
		return s.AdminDatabase
	}
	if s.NormalizedType() == BackendPostgres {
		return "postgres"
	}
	return ""
}

// ConnectionConfig converts a SQL server config into a database manager config
// without credential or database; callers pick them with WithCredential and
// WithDatabase.
func (s ServerConfig) ConnectionConfig() database.ConnectionConfig {
	cfg := database.DefaultConnectionConfig()
	cfg.Type = s.NormalizedType()
	cfg.Host = s.Host
	cfg.Port = s.Port
	cfg.SSLMode = s.SSLMode
	cfg.EnableQueryLog = s.EnableQueryLog
	if s.ConnectTimeout > 0 {
		cfg.ConnectTimeout = s.ConnectTimeout
	}
	// one admin session and at most one verification session per database
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	return *cfg
}

// ValidateAdmin checks what an administrative session needs.
func (c *Config) ValidateAdmin() error {
	return errors.Join(c.adminErrors()...)
}

// Validate rejects configurations that cannot be provisioned.
func (c *Config) Validate() error {
	errs := c.adminErrors()
	if c.User.Username == "" {
		errs = append(errs, errors.New("user.username is required"))
	}
	if c.User.Password == "" {
		errs = append(errs, errors.New("user.password is required"))
	}
	if c.User.Database == "" {
		errs = append(errs, errors.New("user.database is required"))
	}
	for _, grant := range c.User.Roles {
		if strings.TrimSpace(grant.Role) == "" {
			errs = append(errs, errors.New("user.roles entries need a role"))
			break
		}
	}
	switch c.User.IfExists {
	case "", IfExistsFail, IfExistsSkip:
	default:
		errs = append(errs, fmt.Errorf("user.if_exists must be %q or %q, got %q", IfExistsFail, IfExistsSkip, c.User.IfExists))
	}
	return errors.Join(errs...)
}

func (c *Config) adminErrors() []error {
	var errs []error
	switch c.Server.NormalizedType() {
	case BackendMongoDB, BackendPostgres, BackendMySQL:
	default:
		errs = append(errs, fmt.Errorf("unsupported server type %q", c.Server.Type))
	}
	if c.Server.URI != "" && c.Server.NormalizedType() != BackendMongoDB {
		errs = append(errs, errors.New("server.uri is only supported for mongodb"))
	}
	if c.Server.URI == "" && c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if c.Admin.Username == "" {
		errs = append(errs, errors.New("admin.username is required"))
	}
	if c.Admin.Password == "" {
		errs = append(errs, errors.New("admin.password is required"))
	}
	return errs
}

// ResolveSecrets replaces env:, file: and keyring: password references with
// their values.
func (c *Config) ResolveSecrets() error {
	if c.Admin.Password != "" {
		v, err := secrets.Resolve(c.Admin.Password)
		if err != nil {
			return fmt.Errorf("admin password: %w", err)
		}
		c.Admin.Password = v
	}
	if c.User.Password != "" {
		v, err := secrets.Resolve(c.User.Password)
		if err != nil {
			return fmt.Errorf("user password: %w", err)
		}
		c.User.Password = v
	}
	if c.Journal.Store.Password != "" {
		v, err := secrets.Resolve(c.Journal.Store.Password)
		if err != nil {
			return fmt.Errorf("journal password: %w", err)
		}
		c.Journal.Store.Password = v
	}
	return nil
}

// SkipExisting reports whether an existing user is left untouched.
func (c *Config) SkipExisting() bool {
	return c.User.IfExists == IfExistsSkip
}
