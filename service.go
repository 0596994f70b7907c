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

package grantor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/journal"
	"github.com/tomoncle/grantor/provision"
	"github.com/tomoncle/grantor/secrets"
	"github.com/tomoncle/grantor/types"
)

// ErrJournalDisabled is returned by History when no journal is configured.
var ErrJournalDisabled = errors.New("journal is disabled")

type Service interface {
	// Provision creates the configured application user, verifying it
	// afterwards when enabled.
	Provision(ctx context.Context) (*Result, error)

	// Verify logs in as the application user and checks its privileges.
	Verify(ctx context.Context) (*provision.VerifyReport, error)

	// Ping authenticates as the administrator and reports server health.
	Ping(ctx context.Context) (*database.HealthStatus, error)

	// History pages through journal records, newest first.
	History(ctx context.Context, page *types.PageRequest) (*types.Pagination[journal.Record], error)

	// Close releases the journal store.
	Close() error
}

// Result is the outcome of one provisioning run.
type Result struct {
	provision.Outcome
	Report   *provision.VerifyReport
	RecordID int64
}

type ProvisionerFactory func(config.ServerConfig, database.Logger) (provision.Provisioner, error)

type VerifierFactory func(config.ServerConfig, database.Logger) (provision.Verifier, error)

type Option func(*serviceImpl)

// WithLogger replaces the "GRANTOR" logger.
func WithLogger(logger database.Logger) Option {
	return func(s *serviceImpl) { s.logger = logger }
}

// WithProvisioners swaps the backend constructors.
func WithProvisioners(p ProvisionerFactory, v VerifierFactory) Option {
	return func(s *serviceImpl) {
		if p != nil {
			s.newProvisioner = p
		}
		if v != nil {
			s.newVerifier = v
		}
	}
}

// WithJournal uses store instead of opening the configured one.
func WithJournal(store *journal.Store) Option {
	return func(s *serviceImpl) {
		s.journal = store
		s.journalOnce.Do(func() {})
	}
}

type serviceImpl struct {
	cfg            *config.Config
	logger         database.Logger
	newProvisioner ProvisionerFactory
	newVerifier    VerifierFactory

	resolveOnce sync.Once
	resolveErr  error

	journalOnce sync.Once
	journal     *journal.Store
	journalErr  error
}

// NewService returns a Service for cfg. Secrets are resolved and the
// configuration validated on the first operation that needs them.
func NewService(cfg *config.Config, opts ...Option) Service {
	s := &serviceImpl{
		cfg:            cfg,
		newProvisioner: provision.New,
		newVerifier:    provision.NewVerifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = database.NewLogger("GRANTOR")
	}
	return s
}

// prepare resolves secrets once and checks the configuration with validate.
func (s *serviceImpl) prepare(validate func() error) error {
	s.resolveOnce.Do(func() {
		s.logger.Debug("Resolving passwords",
			"admin_reference", secrets.IsReference(s.cfg.Admin.Password),
			"user_reference", secrets.IsReference(s.cfg.User.Password))
		if err := s.cfg.ResolveSecrets(); err != nil {
			s.resolveErr = fmt.Errorf("resolve secrets: %w", err)
		}
	})
	if s.resolveErr != nil {
		return s.resolveErr
	}
	if err := validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (s *serviceImpl) store(ctx context.Context) (*journal.Store, error) {
	s.journalOnce.Do(func() {
		if !s.cfg.Journal.Enabled {
			return
		}
		s.journal, s.journalErr = journal.Open(ctx, s.cfg.Journal.Store, s.logger)
	})
	return s.journal, s.journalErr
}

func (s *serviceImpl) Provision(ctx context.Context) (*Result, error) {
	if err := s.prepare(s.cfg.Validate); err != nil {
		return nil, err
	}
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	app := s.cfg.User.AppCredential
	var rec *journal.Record
	if store != nil {
		rec, err = store.Begin(ctx, journal.Entry{
			Operation: journal.OperationProvision,
			Backend:   s.cfg.Server.NormalizedType(),
			Address:   s.cfg.Server.Target(),
			App:       app,
		})
		if err != nil {
			return nil, err
		}
	}

	result, runErr := s.provision(ctx, app)
	if rec != nil {
		outcome := journal.OutcomeCreated
		if result != nil {
			result.RecordID = rec.ID
			if result.Skipped {
				outcome = journal.OutcomeSkipped
			}
			if result.Report != nil {
				rec.Verified = true
				rec.Report = result.Report.Fields()
			}
		}
		if err := store.Finish(ctx, rec, outcome, string(provision.KindOf(runErr)), runErr); err != nil {
			s.logger.Error("Failed to record provisioning outcome", "error", err)
		}
	}
	return result, runErr
}

func (s *serviceImpl) provision(ctx context.Context, app types.AppCredential) (*Result, error) {
	p, err := s.newProvisioner(s.cfg.Server, s.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.Close(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to close administrative session", "error", err)
		}
	}()

	outcome, err := provision.Run(ctx, p, s.cfg.Admin, app, s.cfg.SkipExisting())
	if err != nil {
		return nil, err
	}
	result := &Result{Outcome: *outcome}
	if outcome.Skipped {
		s.logger.Info("User already exists, skipped", "user", app.Username, "database", app.Database)
	}
	if !s.cfg.Verify {
		return result, nil
	}

	report, err := s.verify(ctx, app)
	result.Report = report
	return result, err
}

func (s *serviceImpl) Verify(ctx context.Context) (*provision.VerifyReport, error) {
	if err := s.prepare(s.cfg.Validate); err != nil {
		return nil, err
	}
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	app := s.cfg.User.AppCredential

	var rec *journal.Record
	if store != nil {
		rec, err = store.Begin(ctx, journal.Entry{
			Operation: journal.OperationVerify,
			Backend:   s.cfg.Server.NormalizedType(),
			Address:   s.cfg.Server.Target(),
			App:       app,
		})
		if err != nil {
			return nil, err
		}
	}

	report, verifyErr := s.verify(ctx, app)
	if rec != nil {
		rec.Verified = report != nil
		if report != nil {
			rec.Report = report.Fields()
		}
		if err := store.Finish(ctx, rec, journal.OutcomeVerified, string(provision.KindOf(verifyErr)), verifyErr); err != nil {
			s.logger.Error("Failed to record verification outcome", "error", err)
		}
	}
	return report, verifyErr
}

func (s *serviceImpl) verify(ctx context.Context, app types.AppCredential) (*provision.VerifyReport, error) {
	v, err := s.newVerifier(s.cfg.Server, s.logger)
	if err != nil {
		return nil, err
	}
	report, err := v.Verify(ctx, app)
	if err != nil {
		return report, err
	}
	return report, report.Check(app)
}

func (s *serviceImpl) Ping(ctx context.Context) (*database.HealthStatus, error) {
	if err := s.prepare(s.cfg.ValidateAdmin); err != nil {
		return nil, err
	}
	p, err := s.newProvisioner(s.cfg.Server, s.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close(context.WithoutCancel(ctx)) }()

	if err := p.Authenticate(ctx, s.cfg.Admin); err != nil {
		return nil, err
	}
	return p.Ping(ctx)
}

func (s *serviceImpl) History(ctx context.Context, page *types.PageRequest) (*types.Pagination[journal.Record], error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrJournalDisabled
	}
	return store.History(ctx, page)
}

func (s *serviceImpl) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}
