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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
)

var videoUser = types.AppCredential{
	Username: "video_user",
	Password: "video_pass",
	Database: "video_agent",
}

type rendered struct {
	db    string
	query string
}

func render(dialect schema.Dialect, stmts []Statement) []rendered {
	out := make([]rendered, len(stmts))
	for i, s := range stmts {
		out[i] = rendered{db: s.Database, query: s.Format(dialect)}
	}
	return out
}

func TestPostgresPlanReadWrite(t *testing.T) {
	stmts, err := Plan(postgresPlanner{schema: "public"}, videoUser)
	require.NoError(t, err)

	assert.Equal(t, []rendered{
		{"", `CREATE ROLE "video_user" LOGIN PASSWORD 'video_pass'`},
		{"", `GRANT CONNECT ON DATABASE "video_agent" TO "video_user"`},
		{"video_agent", `GRANT USAGE, CREATE ON SCHEMA "public" TO "video_user"`},
		{"video_agent", `GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA "public" TO "video_user"`},
		{"video_agent", `GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA "public" TO "video_user"`},
		{"video_agent", `ALTER DEFAULT PRIVILEGES IN SCHEMA "public" GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO "video_user"`},
		{"video_agent", `ALTER DEFAULT PRIVILEGES IN SCHEMA "public" GRANT USAGE, SELECT ON SEQUENCES TO "video_user"`},
	}, render(pgdialect.New(), stmts))
}

func TestPostgresPlanDeduplicates(t *testing.T) {
	app := videoUser
	app.Roles = []types.RoleGrant{{Role: "readWrite"}, {Role: "dbAdmin"}, {Role: "read", Database: "reporting"}}

	stmts, err := Plan(postgresPlanner{schema: "public"}, app)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, r := range render(pgdialect.New(), stmts) {
		counts[r.db+" "+r.query]++
	}
	for key, n := range counts {
		assert.Equal(t, 1, n, key)
	}
	assert.Equal(t, 1, counts[` GRANT CONNECT ON DATABASE "video_agent" TO "video_user"`])
	assert.Equal(t, 1, counts[` GRANT CONNECT ON DATABASE "reporting" TO "video_user"`])
	assert.Equal(t, 1, counts[`reporting GRANT SELECT ON ALL TABLES IN SCHEMA "public" TO "video_user"`])
	assert.Equal(t, 1, counts[` GRANT CREATE, TEMPORARY ON DATABASE "video_agent" TO "video_user"`])
}

func TestMySQLPlan(t *testing.T) {
	app := videoUser
	app.Roles = []types.RoleGrant{{Role: "readWrite"}, {Role: "read", Database: "reporting"}, {Role: "dbOwner", Database: "scratch"}}

	stmts, err := Plan(mysqlPlanner{host: "%"}, app)
	require.NoError(t, err)

	assert.Equal(t, []rendered{
		{"", "CREATE USER 'video_user'@'%' IDENTIFIED BY 'video_pass'"},
		{"", "GRANT SELECT, INSERT, UPDATE, DELETE, CREATE ON `video_agent`.* TO 'video_user'@'%'"},
		{"", "GRANT SELECT ON `reporting`.* TO 'video_user'@'%'"},
		{"", "GRANT ALL PRIVILEGES ON `scratch`.* TO 'video_user'@'%'"},
	}, render(mysqldialect.New(), stmts))
}

func TestPlanRejectsUnknownRole(t *testing.T) {
	app := videoUser
	app.Roles = []types.RoleGrant{{Role: "clusterAdmin", Database: "admin"}}

	_, err := Plan(mysqlPlanner{host: "%"}, app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `role "clusterAdmin" is not supported by mysql`)
	assert.Contains(t, err.Error(), "readWrite")
}

func TestPlannerCanaryStatements(t *testing.T) {
	do, undo := postgresPlanner{schema: "public"}.adminCanary()
	assert.Equal(t, `CREATE ROLE "grantor_canary_denied"`, do.Format(pgdialect.New()))
	assert.Equal(t, `DROP ROLE IF EXISTS "grantor_canary_denied"`, undo.Format(pgdialect.New()))

	do, _ = mysqlPlanner{host: "%"}.adminCanary()
	assert.Equal(t, "CREATE USER 'grantor_canary_denied'@'%'", do.Format(mysqldialect.New()))

	exists := postgresPlanner{}.userExists("video_user")
	assert.Equal(t, "SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_roles WHERE rolname = 'video_user')", exists.Format(pgdialect.New()))

	create := mysqlPlanner{}.createDatabase("video_agent")
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS `video_agent`", create.Format(mysqldialect.New()))
}

func TestStatementRedactedMasksPassword(t *testing.T) {
	for _, pw := range []string{`s3cret\`, `x\'y`, "video_pass"} {
		app := videoUser
		app.Password = pw

		pg := postgresPlanner{schema: "public"}.createUser(app)
		assert.Equal(t, `CREATE ROLE "video_user" LOGIN PASSWORD '******'`, pg.Redacted(pgdialect.New()), pw)
		assert.Contains(t, pg.Format(pgdialect.New()), "LOGIN PASSWORD '")
		assert.NotEqual(t, pg.Redacted(pgdialect.New()), pg.Format(pgdialect.New()))

		my := mysqlPlanner{host: "%"}.createUser(app)
		assert.Equal(t, "CREATE USER 'video_user'@'%' IDENTIFIED BY '******'", my.Redacted(mysqldialect.New()), pw)
	}

	grant := postgresPlanner{schema: "public"}.grant("video_user", types.RoleRead, "video_agent")[0]
	assert.Equal(t, grant.Format(pgdialect.New()), grant.Redacted(pgdialect.New()))
}
