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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Role is one of the built-in database roles understood by every backend.
type Role int

const (
	RoleRead Role = iota
	RoleReadWrite
	RoleDBAdmin
	RoleDBOwner
)

var _ BaseEnum = RoleRead

var roleNames = [...]string{"read", "readWrite", "dbAdmin", "dbOwner"}

var roleDescs = [...]string{
	"read data in one database",
	"read and modify data in one database",
	"manage schema objects in one database",
	"full control over one database",
}

// ParseRole matches names case-insensitively; unknown names yield an invalid Role.
func ParseRole(name string) Role {
	for i, n := range roleNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Role(i)
		}
	}
	return Role(IllegalValue)
}

func (r Role) IsValid() bool { return r >= RoleRead && r <= RoleDBOwner }

func (r Role) Number() int {
	if !r.IsValid() {
		return IllegalValue
	}
	return int(r)
}

func (r Role) Name() string {
	if !r.IsValid() {
		return IllegalName
	}
	return roleNames[r]
}

func (r Role) String() string { return r.Name() }

func (r Role) Desc() string {
	if !r.IsValid() {
		return IllegalDesc
	}
	return roleDescs[r]
}

// CanWrite reports whether the role permits modifying data.
func (r Role) CanWrite() bool {
	return r == RoleReadWrite || r == RoleDBOwner
}

// CanRead reports whether the role permits reading data.
func (r Role) CanRead() bool {
	return r == RoleRead || r == RoleReadWrite || r == RoleDBOwner
}
