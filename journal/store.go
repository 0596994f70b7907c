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

// Package journal records provisioning attempts in a SQL store.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/repository"
	"github.com/tomoncle/grantor/types"
)

// Entry identifies what an attempt is about to do.
type Entry struct {
	Operation Operation
	Backend   string
	Address   string
	App       types.AppCredential
}

type Store struct {
	manager database.AbstractDatabaseManager
	repo    repository.Repository[Record]
	logger  database.Logger
}

// Open connects to the store described by cfg and applies pending migrations.
func Open(ctx context.Context, cfg database.ConnectionConfig, logger database.Logger) (*Store, error) {
	if logger == nil {
		logger = database.GetLogger()
	}
	manager, err := database.NewDatabaseFactory(logger).Open(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	store, err := NewStore(ctx, manager, logger)
	if err != nil {
		_ = manager.Disconnect()
		return nil, err
	}
	return store, nil
}

// NewStore uses an already connected manager and applies pending migrations.
func NewStore(ctx context.Context, manager database.AbstractDatabaseManager, logger database.Logger) (*Store, error) {
	if logger == nil {
		logger = database.NopLogger()
	}
	if err := manager.RunMigrations(ctx, Migrations()...); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{
		manager: manager,
		repo:    repository.NewRepository[Record](manager.GetDB()),
		logger:  logger,
	}, nil
}

// Begin stores a running record for entry.
func (s *Store) Begin(ctx context.Context, entry Entry) (*Record, error) {
	rec := &Record{
		Operation: entry.Operation,
		Backend:   entry.Backend,
		Address:   entry.Address,
		Database:  entry.App.Database,
		Username:  entry.App.Username,
		Roles:     types.GrantList(entry.App.EffectiveRoles()),
		Outcome:   OutcomeRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("journal begin: %w", err)
	}
	return rec, nil
}

// Finish closes rec with outcome, or OutcomeFailed when cause is not nil.
// kind is stored alongside the failure.
func (s *Store) Finish(ctx context.Context, rec *Record, outcome Outcome, kind string, cause error) error {
	if rec == nil {
		return errors.New("journal finish: nil record")
	}
	rec.Outcome = outcome
	if cause != nil {
		rec.Outcome = OutcomeFailed
		rec.ErrorKind = kind
		rec.Error = database.RedactSecrets(rec.Backend, cause.Error())
	}
	rec.FinishedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("journal finish: %w", err)
	}
	s.logger.Debug("Journal record finished", "id", rec.ID, "outcome", rec.Outcome)
	return nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	return s.repo.GetOne(ctx, id)
}

// History pages through records, newest first unless page sets an order.
func (s *Store) History(ctx context.Context, page *types.PageRequest) (*types.Pagination[Record], error) {
	if page == nil {
		page = types.NewPageRequest(1, types.DefaultPageSize)
	}
	if len(page.GetOrders()) == 0 {
		page = page.With(types.WithOrders("id DESC"))
	}
	return s.repo.Page(ctx, page)
}

// ForUser lists every attempt for username in db, oldest first.
func (s *Store) ForUser(ctx context.Context, username, db string) ([]*Record, error) {
	records, err := s.repo.List(ctx, types.NewQueryFilter("username = ? AND db_name = ?", username, db))
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) Close() error {
	return s.manager.Disconnect()
}
