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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleReadWrite, ParseRole("readWrite"))
	assert.Equal(t, RoleReadWrite, ParseRole(" readwrite "))
	assert.Equal(t, RoleDBOwner, ParseRole("dbOwner"))

	unknown := ParseRole("clusterAdmin")
	assert.False(t, unknown.IsValid())
	assert.Equal(t, IllegalValue, unknown.Number())
	assert.Equal(t, IllegalName, unknown.Name())
	assert.False(t, unknown.CanWrite())
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleRead.CanRead())
	assert.False(t, RoleRead.CanWrite())
	assert.True(t, RoleReadWrite.CanWrite())
	assert.False(t, RoleDBAdmin.CanRead())
	assert.True(t, RoleDBOwner.CanWrite())
}

func TestEffectiveRolesDefaultsToReadWrite(t *testing.T) {
	app := AppCredential{Username: "video_user", Database: "video_agent"}

	assert.Equal(t, []RoleGrant{{Role: "readWrite", Database: "video_agent"}}, app.EffectiveRoles())
	assert.True(t, app.CanWrite("video_agent"))
	assert.False(t, app.CanWrite("other"))
}

func TestEffectiveRolesInheritDatabase(t *testing.T) {
	app := AppCredential{
		Username: "reporter",
		Database: "video_agent",
		Roles: []RoleGrant{
			{Role: "read"},
			{Role: "readWrite", Database: "scratch"},
			{Role: "dbAdmin", Database: "scratch"},
		},
	}

	roles := app.EffectiveRoles()
	require.Len(t, roles, 3)
	assert.Equal(t, "video_agent", roles[0].Database)
	assert.Equal(t, []string{"video_agent", "scratch"}, app.Databases())
	assert.Len(t, app.GrantsOn("scratch"), 2)
	assert.False(t, app.CanWrite("video_agent"))
	assert.True(t, app.CanWrite("scratch"))
}

func TestCredentialStringOmitsPassword(t *testing.T) {
	admin := AdminCredential{Username: "admin", Password: "password"}
	app := AppCredential{Username: "video_user", Password: "video_pass", Database: "video_agent"}

	assert.Equal(t, "admin@admin", admin.String())
	assert.NotContains(t, app.String(), "video_pass")
	assert.Contains(t, app.String(), "readWrite@video_agent")
}

func TestGrantListValueScan(t *testing.T) {
	in := GrantList{{Role: "readWrite", Database: "video_agent"}}
	v, err := in.Value()
	require.NoError(t, err)

	var fromString GrantList
	require.NoError(t, fromString.Scan(v))
	assert.Equal(t, in, fromString)

	var fromBytes GrantList
	require.NoError(t, fromBytes.Scan([]byte(v.(string))))
	assert.Equal(t, in, fromBytes)

	var empty GrantList
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)

	assert.Error(t, empty.Scan(42))
}

func TestPageRequestBounds(t *testing.T) {
	p := NewPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, DefaultPageSize, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewPageRequest(3, 10_000, WithOrders("id DESC"), WithFilter(NewQueryFilter("status = ?", "ok")))
	assert.Equal(t, MaxPageSize, p.GetPageSize())
	assert.Equal(t, 2*MaxPageSize, p.GetOffset())
	assert.Equal(t, []string{"id DESC"}, p.GetOrders())
	assert.Equal(t, "status = ?", p.GetFilter().Schema)
}

func TestPageRequestWithCopies(t *testing.T) {
	base := NewPageRequest(2, 5, WithOrders("id ASC"))
	next := base.With(WithOrders("started_at DESC"), WithFilter(NewQueryFilter("username = ?", "video_user")))

	assert.Equal(t, []string{"id ASC"}, base.GetOrders())
	assert.Nil(t, base.GetFilter())
	assert.Equal(t, []string{"id ASC", "started_at DESC"}, next.GetOrders())
	assert.Equal(t, 2, next.GetPage())
	assert.Equal(t, 5, next.GetPageSize())
	assert.NotNil(t, next.GetFilter())
}

func TestPaginationPages(t *testing.T) {
	page := NewPagination[RoleGrant](1, 10)
	assert.Equal(t, 0, page.Pages())
	page.Total = 21
	assert.Equal(t, 3, page.Pages())
}
