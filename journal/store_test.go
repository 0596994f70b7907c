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

package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = database.TypeSQLite
	cfg.DBName = database.MemoryDBName

	s, err := Open(context.Background(), *cfg, database.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var entry = Entry{
	Operation: OperationProvision,
	Backend:   "mongodb",
	Address:   "localhost:27017",
	App: types.AppCredential{
		Username: "video_user",
		Password: "video_pass",
		Database: "video_agent",
	},
}

func TestBeginFinish(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	rec, err := s.Begin(ctx, entry)
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	assert.Equal(t, OutcomeRunning, rec.Outcome)
	assert.Zero(t, rec.Duration())

	rec.Verified = true
	rec.Report = types.JsonObject{"can_write": true}
	require.NoError(t, s.Finish(ctx, rec, OutcomeCreated, "", nil))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, got.Outcome)
	assert.Equal(t, "video_agent", got.Database)
	assert.Equal(t, types.GrantList{{Role: "readWrite", Database: "video_agent"}}, got.Roles)
	assert.True(t, got.Verified)
	assert.Equal(t, true, got.Report["can_write"])
	assert.False(t, got.FinishedAt.IsZero())
	assert.GreaterOrEqual(t, got.Duration().Nanoseconds(), int64(0))
}

func TestFinishFailureRedactsSecrets(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	rec, err := s.Begin(ctx, entry)
	require.NoError(t, err)

	cause := errors.New("CREATE ROLE \"video_user\" LOGIN PASSWORD 'video_pass': role exists")
	require.NoError(t, s.Finish(ctx, rec, OutcomeCreated, "user-exists", cause))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, got.Outcome)
	assert.Equal(t, "user-exists", got.ErrorKind)
	assert.NotContains(t, got.Error, "video_pass")
	assert.Contains(t, got.Error, "PASSWORD '******'")

	assert.Error(t, s.Finish(ctx, nil, OutcomeCreated, "", nil))
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		rec, err := s.Begin(ctx, entry)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	req := types.NewPageRequest(1, 2)
	page, err := s.History(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, req.GetOrders(), "the caller's request is not modified")
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.Equal(t, ids[3], page.Items[1].ID)

	last, err := s.History(ctx, types.NewPageRequest(3, 2))
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, ids[0], last.Items[0].ID)

	filtered, err := s.History(ctx, types.NewPageRequest(1, 10,
		types.WithFilter(types.NewQueryFilter("username = ?", "nobody"))))
	require.NoError(t, err)
	assert.Zero(t, filtered.Total)
	assert.Empty(t, filtered.Items)
}

func TestForUser(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	other := entry
	other.App.Username = "other_user"
	_, err := s.Begin(ctx, entry)
	require.NoError(t, err)
	_, err = s.Begin(ctx, other)
	require.NoError(t, err)
	_, err = s.Begin(ctx, entry)
	require.NoError(t, err)

	records, err := s.ForUser(ctx, "video_user", "video_agent")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Less(t, records[0].ID, records[1].ID)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := NewStore(ctx, s.manager, nil)
	require.NoError(t, err)

	applied, err := database.NewMigrationManager(s.manager.GetDB(), nil).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "create_journal", applied[0].Name)
	assert.Equal(t, "index_journal_user", applied[1].Name)
}
