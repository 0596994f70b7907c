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

import (
	"fmt"
	"strings"
)

// DefaultAuthDatabase is the database administrative users authenticate against.
const DefaultAuthDatabase = "admin"

// AdminCredential is the privileged account used once to open the
// administrative session.
type AdminCredential struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password" json:"-"`
	AuthDatabase string `yaml:"auth_database" json:"auth_database"`
}

// GetAuthDatabase returns the authentication database, "admin" when unset.
func (c AdminCredential) GetAuthDatabase() string {
	if c.AuthDatabase == "" {
		return DefaultAuthDatabase
	}
	return c.AuthDatabase
}

// String never includes the password.
func (c AdminCredential) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.GetAuthDatabase())
}

// RoleGrant pairs a permission level with the database it applies to.
type RoleGrant struct {
	Role     string `yaml:"role" json:"role"`
	Database string `yaml:"db" json:"db"`
}

func (g RoleGrant) String() string {
	return g.Role + "@" + g.Database
}

// AppCredential describes the application user to provision.
type AppCredential struct {
	Username string      `yaml:"username" json:"username"`
	Password string      `yaml:"password" json:"-"`
	Database string      `yaml:"database" json:"database"`
	Roles    []RoleGrant `yaml:"roles" json:"roles"`
}

// EffectiveRoles returns the grants to apply. Without explicit roles the user
// gets readWrite on its own database; grants without a database inherit it.
func (c AppCredential) EffectiveRoles() []RoleGrant {
	if len(c.Roles) == 0 {
		return []RoleGrant{{Role: RoleReadWrite.Name(), Database: c.Database}}
	}
	grants := make([]RoleGrant, 0, len(c.Roles))
	for _, g := range c.Roles {
		if g.Database == "" {
			g.Database = c.Database
		}
		grants = append(grants, g)
	}
	return grants
}

// GrantsOn filters EffectiveRoles down to the given database.
func (c AppCredential) GrantsOn(database string) []RoleGrant {
	var grants []RoleGrant
	for _, g := range c.EffectiveRoles() {
		if g.Database == database {
			grants = append(grants, g)
		}
	}
	return grants
}

// Databases lists the distinct databases named by EffectiveRoles in grant order.
func (c AppCredential) Databases() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range c.EffectiveRoles() {
		if _, ok := seen[g.Database]; ok {
			continue
		}
		seen[g.Database] = struct{}{}
		out = append(out, g.Database)
	}
	return out
}

// CanWrite reports whether any grant on database allows writes.
func (c AppCredential) CanWrite(database string) bool {
	for _, g := range c.GrantsOn(database) {
		if ParseRole(g.Role).CanWrite() {
			return true
		}
	}
	return false
}

// String never includes the password.
func (c AppCredential) String() string {
	roles := make([]string, 0, len(c.Roles))
	for _, g := range c.EffectiveRoles() {
		roles = append(roles, g.String())
	}
	return fmt.Sprintf("%s@%s [%s]", c.Username, c.Database, strings.Join(roles, ","))
}
