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

// defaultMySQLHost is the host part of created accounts.
const defaultMySQLHost = "%"

// mysqlPlanner issues global statements with db-qualified grants.
type mysqlPlanner struct {
	host string
}

func (mysqlPlanner) name() string { return config.BackendMySQL }

// DDL commits implicitly in MySQL.
func (mysqlPlanner) transactional() bool { return false }

func (p mysqlPlanner) createUser(app types.AppCredential) Statement {
	return Statement{
		Query: "CREATE USER ?@? IDENTIFIED BY ?",
		Args:  []interface{}{app.Username, p.host, secret(app.Password)},
	}
}

var mysqlPrivileges = map[types.Role]string{
	types.RoleRead:      "SELECT",
	types.RoleReadWrite: "SELECT, INSERT, UPDATE, DELETE, CREATE",
	types.RoleDBAdmin:   "CREATE, ALTER, DROP, INDEX",
	types.RoleDBOwner:   "ALL PRIVILEGES",
}

func (p mysqlPlanner) grant(username string, role types.Role, db string) []Statement {
	privs, ok := mysqlPrivileges[role]
	if !ok {
		return nil
	}
	return []Statement{{
		Query: "GRANT " + privs + " ON ?.* TO ?@?",
		Args:  []interface{}{bun.Ident(db), username, p.host},
	}}
}

func (p mysqlPlanner) userExists(username string) Statement {
	return Statement{
		Query: "SELECT EXISTS (SELECT 1 FROM mysql.user WHERE user = ? AND host = ?)",
		Args:  []interface{}{username, p.host},
	}
}

func (mysqlPlanner) createDatabase(name string) Statement {
	return Statement{Query: "CREATE DATABASE IF NOT EXISTS ?", Args: []interface{}{bun.Ident(name)}}
}

func (p mysqlPlanner) adminCanary() (Statement, Statement) {
	return Statement{Query: "CREATE USER ?@?", Args: []interface{}{adminCanaryRole, p.host}},
		Statement{Query: "DROP USER IF EXISTS ?@?", Args: []interface{}{adminCanaryRole, p.host}}
}
