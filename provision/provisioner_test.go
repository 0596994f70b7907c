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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
)

type fakeProvisioner struct {
	calls   []string
	exists  bool
	failOn  string
	failErr error
	useDB   string
	created types.AppCredential
}

func (f *fakeProvisioner) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return f.failErr
	}
	return nil
}

func (f *fakeProvisioner) Backend() string { return "fake" }

func (f *fakeProvisioner) Authenticate(ctx context.Context, admin types.AdminCredential) error {
	return f.step("authenticate")
}

func (f *fakeProvisioner) UseDatabase(ctx context.Context, name string) error {
	f.useDB = name
	return f.step("use")
}

func (f *fakeProvisioner) UserExists(ctx context.Context, username string) (bool, error) {
	return f.exists, f.step("exists")
}

func (f *fakeProvisioner) CreateUser(ctx context.Context, app types.AppCredential) error {
	f.created = app
	return f.step("create")
}

func (f *fakeProvisioner) Ping(ctx context.Context) (*database.HealthStatus, error) {
	return &database.HealthStatus{Healthy: true}, f.step("ping")
}

func (f *fakeProvisioner) Close(ctx context.Context) error { return f.step("close") }

var adminCred = types.AdminCredential{Username: "admin", Password: "password"}

func TestRunSequence(t *testing.T) {
	p := &fakeProvisioner{}
	out, err := Run(context.Background(), p, adminCred, videoUser, false)
	require.NoError(t, err)

	assert.True(t, out.Created)
	assert.Equal(t, []string{"authenticate", "use", "create"}, p.calls)
	assert.Equal(t, "video_agent", p.useDB)
	assert.Equal(t, "video_user", p.created.Username)
}

func TestRunFailsFast(t *testing.T) {
	authErr := newError("authenticate", "fake", KindAuthFailed, errors.New("bad password"))
	p := &fakeProvisioner{failOn: "authenticate", failErr: authErr}

	_, err := Run(context.Background(), p, adminCred, videoUser, false)
	require.ErrorIs(t, err, authErr)
	assert.Equal(t, KindAuthFailed, KindOf(err))
	assert.Equal(t, []string{"authenticate"}, p.calls)
}

func TestRunDuplicateUser(t *testing.T) {
	dup := newError("create user", "fake", KindUserExists, errors.New("already exists"))
	p := &fakeProvisioner{exists: true, failOn: "create", failErr: dup}

	_, err := Run(context.Background(), p, adminCred, videoUser, false)
	assert.Equal(t, KindUserExists, KindOf(err))
	assert.NotContains(t, p.calls, "exists")
}

func TestRunSkipExisting(t *testing.T) {
	p := &fakeProvisioner{exists: true}
	out, err := Run(context.Background(), p, adminCred, videoUser, true)
	require.NoError(t, err)

	assert.True(t, out.Skipped)
	assert.False(t, out.Created)
	assert.Equal(t, []string{"authenticate", "use", "exists"}, p.calls)

	p = &fakeProvisioner{}
	out, err = Run(context.Background(), p, adminCred, videoUser, true)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, []string{"authenticate", "use", "exists", "create"}, p.calls)
}

func TestRunRejectsIncompleteCredential(t *testing.T) {
	p := &fakeProvisioner{}
	_, err := Run(context.Background(), p, adminCred, types.AppCredential{Username: "video_user"}, false)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Empty(t, p.calls)
}

func TestNewBackends(t *testing.T) {
	for typ, want := range map[string]string{
		"mongodb":    config.BackendMongoDB,
		"postgresql": config.BackendPostgres,
		"mariadb":    config.BackendMySQL,
	} {
		p, err := New(config.ServerConfig{Type: typ, Host: "localhost"}, database.NopLogger())
		require.NoError(t, err)
		assert.Equal(t, want, p.Backend())

		v, err := NewVerifier(config.ServerConfig{Type: typ, Host: "localhost"}, database.NopLogger())
		require.NoError(t, err)
		assert.NotNil(t, v)
	}

	_, err := New(config.ServerConfig{Type: "oracle"}, database.NopLogger())
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = NewVerifier(config.ServerConfig{Type: "oracle"}, database.NopLogger())
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestOperationsBeforeAuthenticate(t *testing.T) {
	ctx := context.Background()
	for _, typ := range []string{config.BackendMongoDB, config.BackendPostgres, config.BackendMySQL} {
		p, err := New(config.ServerConfig{Type: typ, Host: "localhost"}, database.NopLogger())
		require.NoError(t, err)

		assert.ErrorIs(t, p.UseDatabase(ctx, "video_agent"), ErrNotAuthenticated, typ)
		assert.ErrorIs(t, p.CreateUser(ctx, videoUser), ErrNotAuthenticated, typ)
		_, err = p.UserExists(ctx, "video_user")
		assert.ErrorIs(t, err, ErrNotAuthenticated, typ)
		status, err := p.Ping(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated, typ)
		assert.False(t, status.Healthy)
		assert.NoError(t, p.Close(ctx), typ)
	}
}
