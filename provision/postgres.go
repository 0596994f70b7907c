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
	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun"
)

const defaultPostgresSchema = "public"

const adminCanaryRole = "grantor_canary_denied"

// postgresPlanner grants on the database and on one schema in it. Schema
// privileges live inside each database, so those statements carry Database.
type postgresPlanner struct {
	schema string
}

func (postgresPlanner) name() string { return config.BackendPostgres }

func (postgresPlanner) transactional() bool { return true }

func (postgresPlanner) createUser(app types.AppCredential) Statement {
	return Statement{
		Query: "CREATE ROLE ? LOGIN PASSWORD ?",
		Args:  []interface{}{bun.Ident(app.Username), secret(app.Password)},
	}
}

func (p postgresPlanner) grant(username string, role types.Role, db string) []Statement {
	user, database, schema := bun.Ident(username), bun.Ident(db), bun.Ident(p.schema)
	onDB := func(query string, args ...interface{}) Statement {
		return Statement{Database: db, Query: query, Args: args}
	}

	stmts := []Statement{{Query: "GRANT CONNECT ON DATABASE ? TO ?", Args: []interface{}{database, user}}}
	switch role {
	case types.RoleRead:
		stmts = append(stmts,
			onDB("GRANT USAGE ON SCHEMA ? TO ?", schema, user),
			onDB("GRANT SELECT ON ALL TABLES IN SCHEMA ? TO ?", schema, user),
			onDB("ALTER DEFAULT PRIVILEGES IN SCHEMA ? GRANT SELECT ON TABLES TO ?", schema, user),
		)
	case types.RoleReadWrite:
		stmts = append(stmts,
			onDB("GRANT USAGE, CREATE ON SCHEMA ? TO ?", schema, user),
			onDB("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA ? TO ?", schema, user),
			onDB("GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA ? TO ?", schema, user),
			onDB("ALTER DEFAULT PRIVILEGES IN SCHEMA ? GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO ?", schema, user),
			onDB("ALTER DEFAULT PRIVILEGES IN SCHEMA ? GRANT USAGE, SELECT ON SEQUENCES TO ?", schema, user),
		)
	case types.RoleDBAdmin:
		stmts = append(stmts,
			Statement{Query: "GRANT CREATE, TEMPORARY ON DATABASE ? TO ?", Args: []interface{}{database, user}},
			onDB("GRANT USAGE, CREATE ON SCHEMA ? TO ?", schema, user),
		)
	case types.RoleDBOwner:
		stmts = append(stmts,
			Statement{Query: "GRANT ALL PRIVILEGES ON DATABASE ? TO ?", Args: []interface{}{database, user}},
			onDB("GRANT ALL PRIVILEGES ON SCHEMA ? TO ?", schema, user),
			onDB("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA ? TO ?", schema, user),
			onDB("GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA ? TO ?", schema, user),
			onDB("ALTER DEFAULT PRIVILEGES IN SCHEMA ? GRANT ALL ON TABLES TO ?", schema, user),
			onDB("ALTER DEFAULT PRIVILEGES IN SCHEMA ? GRANT ALL ON SEQUENCES TO ?", schema, user),
		)
	}
	return stmts
}

func (postgresPlanner) userExists(username string) Statement {
	return Statement{
		Query: "SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_roles WHERE rolname = ?)",
		Args:  []interface{}{username},
	}
}

func (postgresPlanner) createDatabase(name string) Statement {
	return Statement{Query: "CREATE DATABASE ?", Args: []interface{}{bun.Ident(name)}}
}

func (postgresPlanner) adminCanary() (Statement, Statement) {
	return Statement{Query: "CREATE ROLE ?", Args: []interface{}{bun.Ident(adminCanaryRole)}},
		Statement{Query: "DROP ROLE IF EXISTS ?", Args: []interface{}{bun.Ident(adminCanaryRole)}}
}
