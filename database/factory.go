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
	"fmt"
	"os"
	"strconv"
	"time"
)

var supportedTypes = []string{TypeMySQL, TypePostgres, TypeSQLite}

// BaseDatabaseFactory validates connection configs and hands out connected
// managers sharing one logger.
type BaseDatabaseFactory struct {
	logger Logger
}

// NewDatabaseFactory returns a factory using logger, or the global logger when nil.
func NewDatabaseFactory(logger Logger) *BaseDatabaseFactory {
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseDatabaseFactory{logger: logger}
}

// CreateFromConfig checks cfg and builds an unconnected manager.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	supported := false
	for _, t := range supportedTypes {
		if cfg.NormalizedType() == t {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, supportedTypes)
	}
	if cfg.NormalizedType() != TypeSQLite && cfg.Host == "" {
		return nil, fmt.Errorf("database host is required for type %s", cfg.Type)
	}

	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)
	return manager, nil
}

// Open creates a manager for cfg and connects it.
func (f *BaseDatabaseFactory) Open(ctx context.Context, cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	manager, err := f.CreateFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}

// OverrideFromEnv applies <prefix>HOST, <prefix>PORT, ... on top of cfg.
func OverrideFromEnv(prefix string, cfg *ConnectionConfig) {
	if v := os.Getenv(prefix + "TYPE"); v != "" {
		cfg.Type = v
	}
	if v := os.Getenv(prefix + "HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(prefix + "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv(prefix + "USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(prefix + "PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(prefix + "NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv(prefix + "SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	if v := os.Getenv(prefix + "CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConnectTimeout = d
		}
	}
	if v := os.Getenv(prefix + "ENABLE_QUERY_LOG"); v != "" {
		cfg.EnableQueryLog = v == "true" || v == "1"
	}
}
