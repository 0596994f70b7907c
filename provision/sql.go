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
	"errors"
	"fmt"
	"time"

	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun"
)

// sqlProvisioner drives PostgreSQL and MySQL through bun. The administrative
// session is one database manager per database touched.
type sqlProvisioner struct {
	server   config.ServerConfig
	planner  planner
	factory  *database.BaseDatabaseFactory
	logger   database.Logger
	admin    types.AdminCredential
	sessions map[string]database.AbstractDatabaseManager
	current  string
}

func newSQLProvisioner(server config.ServerConfig, p planner, logger database.Logger) *sqlProvisioner {
	return &sqlProvisioner{
		server:   server,
		planner:  p,
		factory:  database.NewDatabaseFactory(logger),
		logger:   logger,
		sessions: make(map[string]database.AbstractDatabaseManager),
	}
}

func (s *sqlProvisioner) Backend() string { return s.planner.name() }

func (s *sqlProvisioner) Authenticate(ctx context.Context, admin types.AdminCredential) error {
	s.admin = admin
	db := s.server.GetAdminDatabase()
	if _, err := s.session(ctx, db); err != nil {
		s.admin = types.AdminCredential{}
		return classify("authenticate", s.Backend(), err)
	}
	s.current = db
	s.logger.Info("Authenticated", "backend", s.Backend(), "address", s.server.Address(), "user", admin.Username)
	return nil
}

// UseDatabase opens a session on name, creating the database when the
// server reports it missing.
func (s *sqlProvisioner) UseDatabase(ctx context.Context, name string) error {
	if s.admin.Username == "" {
		return classify("use database", s.Backend(), ErrNotAuthenticated)
	}
	if name == "" {
		return newError("use database", s.Backend(), KindInvalidInput, errors.New("database name is empty"))
	}

	_, err := s.session(ctx, name)
	if is, kind := database.IsSqlError(err); is && kind == database.UnknownDatabaseErr {
		if err := s.exec(ctx, s.sessions[s.current].GetDB(), s.planner.createDatabase(name)); err != nil {
			return classify("create database", s.Backend(), err)
		}
		s.logger.Info("Database created", "database", name)
		_, err = s.session(ctx, name)
	}
	if err != nil {
		return classify("use database", s.Backend(), err)
	}
	s.current = name
	s.logger.Debug("Switched database", "database", name)
	return nil
}

func (s *sqlProvisioner) UserExists(ctx context.Context, username string) (bool, error) {
	dm, ok := s.sessions[s.current]
	if !ok {
		return false, classify("user exists", s.Backend(), ErrNotAuthenticated)
	}
	stmt := s.planner.userExists(username)
	var exists bool
	if err := dm.GetDB().QueryRowContext(ctx, stmt.Query, stmt.Args...).Scan(&exists); err != nil {
		return false, classify("user exists", s.Backend(), err)
	}
	return exists, nil
}

func (s *sqlProvisioner) CreateUser(ctx context.Context, app types.AppCredential) error {
	if _, ok := s.sessions[s.current]; !ok {
		return classify("create user", s.Backend(), ErrNotAuthenticated)
	}
	if app.Username == "" || app.Password == "" {
		return newError("create user", s.Backend(), KindInvalidInput, errors.New("username and password are required"))
	}
	stmts, err := Plan(s.planner, app)
	if err != nil {
		return newError("create user", s.Backend(), KindInvalidInput, err)
	}

	// statements for the current session first, role creation included
	groups := map[string][]Statement{}
	order := []string{s.current}
	for _, stmt := range stmts {
		db := stmt.Database
		if db == "" {
			db = s.current
		}
		if _, ok := groups[db]; !ok && db != s.current {
			order = append(order, db)
		}
		groups[db] = append(groups[db], stmt)
	}

	for _, db := range order {
		dm, err := s.session(ctx, db)
		if err != nil {
			return classify("create user", s.Backend(), err)
		}
		if err := s.execGroup(ctx, dm.GetDB(), groups[db]); err != nil {
			return classify("create user", s.Backend(), err)
		}
	}
	s.logger.Info("User created", "backend", s.Backend(), "user", app.String(),
		"databases", app.Databases(), "statements", len(stmts))
	return nil
}

func (s *sqlProvisioner) Ping(ctx context.Context) (*database.HealthStatus, error) {
	dm, ok := s.sessions[s.current]
	if !ok {
		status := &database.HealthStatus{LastCheckTime: time.Now(), LastError: ErrNotAuthenticated.Error()}
		return status, classify("ping", s.Backend(), ErrNotAuthenticated)
	}
	status := dm.HealthCheck(ctx)
	if !status.Healthy {
		return status, classify("ping", s.Backend(), errors.New(status.LastError))
	}
	return status, nil
}

func (s *sqlProvisioner) Close(ctx context.Context) error {
	var errs []error
	for db, dm := range s.sessions {
		if err := dm.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("close session on %q: %w", db, err))
		}
	}
	s.sessions = make(map[string]database.AbstractDatabaseManager)
	s.current = ""
	if err := errors.Join(errs...); err != nil {
		return classify("close", s.Backend(), err)
	}
	return nil
}

func (s *sqlProvisioner) session(ctx context.Context, db string) (database.AbstractDatabaseManager, error) {
	if dm, ok := s.sessions[db]; ok {
		return dm, nil
	}
	cfg := s.server.ConnectionConfig().WithCredential(s.admin.Username, s.admin.Password).WithDatabase(db)
	dm, err := s.factory.Open(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	s.sessions[db] = dm
	return dm, nil
}

func (s *sqlProvisioner) execGroup(ctx context.Context, db *bun.DB, stmts []Statement) error {
	if !s.planner.transactional() || len(stmts) < 2 {
		for _, stmt := range stmts {
			if err := s.exec(ctx, db, stmt); err != nil {
				return err
			}
		}
		return nil
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range stmts {
			if err := s.exec(ctx, tx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqlProvisioner) exec(ctx context.Context, db bun.IDB, stmt Statement) error {
	if _, err := db.ExecContext(ctx, stmt.Query, stmt.Args...); err != nil {
		return fmt.Errorf("%s: %w", stmt.Redacted(db.Dialect()), err)
	}
	return nil
}

type sqlVerifier struct {
	server  config.ServerConfig
	planner planner
	factory *database.BaseDatabaseFactory
	logger  database.Logger
}

func newSQLVerifier(server config.ServerConfig, p planner, logger database.Logger) *sqlVerifier {
	return &sqlVerifier{server: server, planner: p, factory: database.NewDatabaseFactory(logger), logger: logger}
}

func (v *sqlVerifier) Verify(ctx context.Context, app types.AppCredential) (*VerifyReport, error) {
	backend := v.planner.name()
	report := &VerifyReport{Database: app.Database}

	cfg := v.server.ConnectionConfig().WithCredential(app.Username, app.Password).WithDatabase(app.Database)
	dm, err := v.factory.Open(ctx, &cfg)
	if err != nil {
		return report, classify("verify", backend, err)
	}
	defer func() {
		if err := dm.Disconnect(); err != nil {
			v.logger.Warn("Failed to close verification session", "error", err)
		}
	}()
	report.CanAuthenticate = true

	db := dm.GetDB()
	report.CanRead, report.CanWrite, err = canarySQL(ctx, db, app.Username, expectRead(app, app.Database), app.CanWrite(app.Database), v.logger)
	if err != nil {
		return report, classify("verify", backend, err)
	}

	do, undo := v.planner.adminCanary()
	_, err = db.ExecContext(ctx, do.Query, do.Args...)
	switch {
	case refused(err):
		report.AdminDenied = true
	case err == nil:
		if _, err := db.ExecContext(ctx, undo.Query, undo.Args...); err != nil {
			v.logger.Error("Failed to undo administrative canary", "query", undo.Format(db.Dialect()), "error", err)
		}
	default:
		return report, classify("verify admin denied", backend, err)
	}

	v.logger.Info("Verification finished", "user", app.Username, "database", app.Database,
		"read", report.CanRead, "write", report.CanWrite, "admin_denied", report.AdminDenied)
	return report, nil
}
