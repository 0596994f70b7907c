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
	"fmt"
	"strings"

	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun/schema"
)

// Statement is one SQL statement with bun placeholders. Database names the
// database whose session must run it; empty means the current session.
type Statement struct {
	Database string
	Query    string
	Args     []interface{}
}

// secret marks a statement argument that must never be rendered outside the
// statement sent to the server.
type secret string

const maskedSecret secret = "******"

// Format renders s for dialect the same way bun sends it to the server.
func (s Statement) Format(dialect schema.Dialect) string {
	return schema.NewFormatter(dialect).FormatQuery(s.Query, s.Args...)
}

// Redacted renders s like Format with every secret argument masked. Use it for
// anything that is logged, returned or stored.
func (s Statement) Redacted(dialect schema.Dialect) string {
	args := make([]interface{}, len(s.Args))
	for i, arg := range s.Args {
		if _, ok := arg.(secret); ok {
			arg = maskedSecret
		}
		args[i] = arg
	}
	return schema.NewFormatter(dialect).FormatQuery(s.Query, args...)
}

// planner turns an application credential into SQL for one server flavor.
type planner interface {
	name() string
	createUser(app types.AppCredential) Statement
	grant(username string, role types.Role, db string) []Statement
	userExists(username string) Statement
	createDatabase(name string) Statement
	// adminCanary is an operation an application user must not be allowed to
	// run, plus the statement undoing it.
	adminCanary() (do Statement, undo Statement)
	// transactional reports whether DDL can be grouped in a transaction.
	transactional() bool
}

// Plan returns every statement needed to create app through p. Roles are
// validated before anything is planned.
func Plan(p planner, app types.AppCredential) ([]Statement, error) {
	grants := app.EffectiveRoles()
	roles := make([]types.Role, len(grants))
	for i, g := range grants {
		r := types.ParseRole(g.Role)
		if !r.IsValid() {
			return nil, fmt.Errorf("role %q is not supported by %s, want one of %s",
				g.Role, p.name(), strings.Join(roleNames(), ", "))
		}
		roles[i] = r
	}

	stmts := []Statement{p.createUser(app)}
	seen := make(map[string]struct{})
	for i, g := range grants {
		for _, s := range p.grant(app.Username, roles[i], g.Database) {
			key := s.Database + "\x00" + s.Query + "\x00" + fmt.Sprint(s.Args...)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

func roleNames() []string {
	names := make([]string, 0, 4)
	for _, r := range []types.Role{types.RoleRead, types.RoleReadWrite, types.RoleDBAdmin, types.RoleDBOwner} {
		names = append(names, r.Name())
	}
	return names
}
