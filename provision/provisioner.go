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

package provision

import (
	"context"
	"fmt"

	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
)

// Provisioner is one administrative session against a database server.
type Provisioner interface {
	// Authenticate opens the session as admin.
	Authenticate(ctx context.Context, admin types.AdminCredential) error
	// UseDatabase switches the session to name.
	UseDatabase(ctx context.Context, name string) error
	// UserExists reports whether username is already defined.
	UserExists(ctx context.Context, username string) (bool, error)
	// CreateUser creates app with its effective role grants.
	CreateUser(ctx context.Context, app types.AppCredential) error
	// Ping checks the administrative session.
	Ping(ctx context.Context) (*database.HealthStatus, error)
	Close(ctx context.Context) error
	Backend() string
}

// Verifier logs in as an application user and exercises its privileges.
type Verifier interface {
	Verify(ctx context.Context, app types.AppCredential) (*VerifyReport, error)
}

// New returns the Provisioner for server.Type.
func New(server config.ServerConfig, logger database.Logger) (Provisioner, error) {
	if logger == nil {
		logger = database.GetLogger()
	}
	switch server.NormalizedType() {
	case config.BackendMongoDB:
		return newMongoProvisioner(server, logger), nil
	case config.BackendPostgres:
		return newSQLProvisioner(server, postgresPlanner{schema: defaultPostgresSchema}, logger), nil
	case config.BackendMySQL:
		return newSQLProvisioner(server, mysqlPlanner{host: defaultMySQLHost}, logger), nil
	}
	return nil, newError("open", server.Type, KindInvalidInput, fmt.Errorf("unsupported server type %q", server.Type))
}

// NewVerifier returns the Verifier for server.Type.
func NewVerifier(server config.ServerConfig, logger database.Logger) (Verifier, error) {
	if logger == nil {
		logger = database.GetLogger()
	}
	switch server.NormalizedType() {
	case config.BackendMongoDB:
		return &mongoVerifier{server: server, logger: logger}, nil
	case config.BackendPostgres:
		return newSQLVerifier(server, postgresPlanner{schema: defaultPostgresSchema}, logger), nil
	case config.BackendMySQL:
		return newSQLVerifier(server, mysqlPlanner{host: defaultMySQLHost}, logger), nil
	}
	return nil, newError("open", server.Type, KindInvalidInput, fmt.Errorf("unsupported server type %q", server.Type))
}

// Outcome is what Run did to the application user.
type Outcome struct {
	Created bool
	Skipped bool
}

// Run executes the bootstrap sequence on p. When skipExisting is set an
// existing user is left untouched; otherwise creation fails with
// KindUserExists. Run does not close p.
func Run(ctx context.Context, p Provisioner, admin types.AdminCredential, app types.AppCredential, skipExisting bool) (*Outcome, error) {
	if app.Username == "" || app.Database == "" {
		return nil, newError("create user", p.Backend(), KindInvalidInput, fmt.Errorf("application username and database are required"))
	}
	if err := p.Authenticate(ctx, admin); err != nil {
		return nil, err
	}
	if err := p.UseDatabase(ctx, app.Database); err != nil {
		return nil, err
	}
	if skipExisting {
		exists, err := p.UserExists(ctx, app.Username)
		if err != nil {
			return nil, err
		}
		if exists {
			return &Outcome{Skipped: true}, nil
		}
	}
	if err := p.CreateUser(ctx, app); err != nil {
		return nil, err
	}
	return &Outcome{Created: true}, nil
}
