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

package repository

import (
	"context"

	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun"
)

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Create(ctx context.Context, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	Delete(ctx context.Context, id any) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD and pagination. WithTx returns a repository bound
// to tx.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]
	WithTx(tx bun.Tx) Repository[T]
}

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// NewRepository returns a generic repository backed by db, which may be a
// *bun.DB, bun.Tx or bun.Conn.
func NewRepository[T any](db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db}
}

func (r *baseRepositoryImpl[T]) WithTx(tx bun.Tx) Repository[T] {
	return &baseRepositoryImpl[T]{db: tx}
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	var entity T
	err := r.db.NewSelect().Model(&entity).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if filter := pageRequest.GetFilter(); filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	pagination := types.NewPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	if orders := pageRequest.GetOrders(); len(orders) > 0 {
		query = query.Order(orders...)
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 1 {
		_, err := r.db.NewInsert().Model(entity[0]).Exec(ctx)
		return err
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)
	_, err := r.db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	_, err := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	var entity T
	_, err := r.db.NewDelete().Model(&entity).Where("id = ?", id).Exec(ctx)
	return err
}
