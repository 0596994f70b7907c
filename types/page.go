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

package types

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{Schema: schema, Args: args}
}

// PageRequest describes a page window with optional filter and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "id ASC", "started_at DESC"
}

// PageOption customizes a PageRequest.
type PageOption func(*PageRequest)

// WithFilter restricts the page to rows matching filter.
func WithFilter(filter *QueryFilter) PageOption {
	return func(p *PageRequest) { p.filter = filter }
}

// WithOrders sets ORDER BY expressions.
func WithOrders(orders ...string) PageOption {
	return func(p *PageRequest) { p.orders = append(p.orders, orders...) }
}

// NewPageRequest builds a request for the 1-based page.
func NewPageRequest(page, pageSize int, opts ...PageOption) *PageRequest {
	p := &PageRequest{page: page, pageSize: pageSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// With returns a copy of p with opts applied; p is left unchanged.
func (p *PageRequest) With(opts ...PageOption) *PageRequest {
	c := *p
	c.orders = append([]string(nil), p.orders...)
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

func (p *PageRequest) GetPageSize() int {
	switch {
	case p.pageSize < 1:
		return DefaultPageSize
	case p.pageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		return 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// Pagination holds one page of items with its position in the full result.
type Pagination[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	Items    []*T `json:"items"`
}

// NewPagination returns an empty page.
func NewPagination[T any](page, pageSize int) *Pagination[T] {
	return &Pagination[T]{Page: page, PageSize: pageSize, Items: make([]*T, 0)}
}

// Pages returns the number of pages needed for Total items.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
