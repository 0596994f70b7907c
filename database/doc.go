// Package database provides bun connection management for the SQL servers
// grantor provisions (PostgreSQL, MySQL) and for its sqlite journal, along
// with driver error classification, secret-redacting query hooks, versioned
// migrations and the shared Logger contract.
package database
