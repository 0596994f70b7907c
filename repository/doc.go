// Package repository provides a generic repository abstraction built on Bun
// for CRUD operations, filtered listing, pagination and transactions.
package repository
