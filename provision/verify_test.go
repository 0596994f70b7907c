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
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/mongo"
)

func memoryDB(t *testing.T) *bun.DB {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = database.TypeSQLite
	cfg.DBName = database.MemoryDBName

	dm, err := database.NewDatabaseFactory(database.NopLogger()).Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Disconnect() })
	return dm.GetDB()
}

func TestCanaryReadWrite(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)

	canRead, canWrite, err := canarySQL(ctx, db, "video_user", true, true, database.NopLogger())
	require.NoError(t, err)
	assert.True(t, canRead)
	assert.True(t, canWrite)

	left, err := db.NewSelect().Model((*canaryRecord)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, left, "canary rows must be removed")

	// a second run reuses the canary table
	_, _, err = canarySQL(ctx, db, "video_user", true, true, database.NopLogger())
	assert.NoError(t, err)
}

func TestCanaryReadOnly(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)

	canRead, canWrite, err := canarySQL(ctx, db, "reporter", true, false, database.NopLogger())
	require.NoError(t, err)
	assert.True(t, canRead)
	assert.False(t, canWrite)

	_, err = db.NewCreateTable().Model((*canaryRecord)(nil)).Exec(ctx)
	require.NoError(t, err)
	canRead, _, err = canarySQL(ctx, db, "reporter", true, false, database.NopLogger())
	require.NoError(t, err)
	assert.True(t, canRead)
}

func TestCanaryWithoutReadOrWriteGrant(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)

	canRead, canWrite, err := canarySQL(ctx, db, "schema_admin", false, false, database.NopLogger())
	require.NoError(t, err)
	assert.False(t, canRead)
	assert.False(t, canWrite)

	exists, err := db.NewSelect().Table("sqlite_master").Where("name = ?", CanaryName).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "no canary table is created without a write grant")
}

type fakeCanaryTarget struct {
	rows      map[string]string
	readErr   error
	writeErr  error
	prepared  bool
	removed   []string
	scanCalls int
}

func newFakeCanaryTarget() *fakeCanaryTarget {
	return &fakeCanaryTarget{rows: map[string]string{}}
}

func (f *fakeCanaryTarget) prepare(context.Context) error {
	f.prepared = true
	return nil
}

func (f *fakeCanaryTarget) insert(_ context.Context, rec *canaryRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.rows[rec.ID] = rec.Username
	return nil
}

func (f *fakeCanaryTarget) lookup(_ context.Context, id string) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.rows[id], nil
}

func (f *fakeCanaryTarget) scan(context.Context) error {
	f.scanCalls++
	return f.readErr
}

func (f *fakeCanaryTarget) remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	delete(f.rows, id)
	return nil
}

func TestRunCanaryReadWrite(t *testing.T) {
	target := newFakeCanaryTarget()

	canRead, canWrite, err := runCanary(context.Background(), target, "video_user", true, true)
	require.NoError(t, err)
	assert.True(t, canRead)
	assert.True(t, canWrite)
	assert.True(t, target.prepared)
	assert.Len(t, target.removed, 1)
	assert.Empty(t, target.rows)
}

func TestRunCanarySkipsReadWithoutReadGrant(t *testing.T) {
	target := newFakeCanaryTarget()
	target.readErr = mongo.CommandError{Code: 13, Name: "Unauthorized"}

	canRead, canWrite, err := runCanary(context.Background(), target, "schema_admin", false, false)
	require.NoError(t, err)
	assert.False(t, canRead)
	assert.False(t, canWrite)
	assert.Zero(t, target.scanCalls)
}

func TestRunCanaryRefusedReadIsNotAnError(t *testing.T) {
	target := newFakeCanaryTarget()
	target.readErr = &pq.Error{Code: "42501", Message: "permission denied for table grantor_canary"}

	canRead, canWrite, err := runCanary(context.Background(), target, "reporter", true, false)
	require.NoError(t, err)
	assert.False(t, canRead)
	assert.False(t, canWrite)

	canRead, canWrite, err = runCanary(context.Background(), target, "video_user", true, true)
	require.NoError(t, err)
	assert.False(t, canRead)
	assert.True(t, canWrite)
	assert.Len(t, target.removed, 1, "the canary row is removed even when it cannot be read")
}

func TestRunCanaryPropagatesOtherErrors(t *testing.T) {
	target := newFakeCanaryTarget()
	target.writeErr = errors.New("disk full")

	_, _, err := runCanary(context.Background(), target, "video_user", true, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert canary row: disk full")

	target = newFakeCanaryTarget()
	target.readErr = errors.New("connection reset")
	_, _, err = runCanary(context.Background(), target, "reporter", true, false)
	assert.ErrorContains(t, err, "read canary: connection reset")
}

func TestVerifyReportCheck(t *testing.T) {
	app := videoUser

	ok := &VerifyReport{Database: "video_agent", CanAuthenticate: true, CanRead: true, CanWrite: true, AdminDenied: true}
	assert.NoError(t, ok.Check(app))

	noWrite := *ok
	noWrite.CanWrite = false
	assert.ErrorContains(t, noWrite.Check(app), "cannot write video_agent")

	admin := *ok
	admin.AdminDenied = false
	assert.ErrorContains(t, admin.Check(app), "administrative operation was not refused")

	readOnly := app
	readOnly.Roles = []types.RoleGrant{{Role: "read"}}
	reader := &VerifyReport{Database: "video_agent", CanAuthenticate: true, CanRead: true, AdminDenied: true}
	assert.NoError(t, reader.Check(readOnly))

	schemaAdmin := app
	schemaAdmin.Roles = []types.RoleGrant{{Role: "dbAdmin"}}
	ddlOnly := &VerifyReport{Database: "video_agent", CanAuthenticate: true, AdminDenied: true}
	assert.NoError(t, ddlOnly.Check(schemaAdmin))

	none := &VerifyReport{Database: "video_agent"}
	err := none.Check(app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot authenticate")
	assert.Contains(t, err.Error(), "cannot read")
}

func TestVerifyReportFields(t *testing.T) {
	r := &VerifyReport{Database: "video_agent", CanAuthenticate: true, AdminDenied: true}
	f := r.Fields()
	assert.Equal(t, "video_agent", f["database"])
	assert.Equal(t, true, f["admin_denied"])
	assert.Equal(t, false, f["can_write"])
}
