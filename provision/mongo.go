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
	"time"

	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const appName = "grantor"

type mongoProvisioner struct {
	server config.ServerConfig
	logger database.Logger
	client *mongo.Client
	db     *mongo.Database
}

func newMongoProvisioner(server config.ServerConfig, logger database.Logger) *mongoProvisioner {
	return &mongoProvisioner{server: server, logger: logger}
}

func (m *mongoProvisioner) Backend() string { return config.BackendMongoDB }

func (m *mongoProvisioner) Authenticate(ctx context.Context, admin types.AdminCredential) error {
	if m.client != nil {
		return nil
	}
	client, err := connectMongo(ctx, m.server, adminMongoCredential(admin))
	if err != nil {
		return classify("authenticate", m.Backend(), err)
	}
	m.client = client
	m.db = client.Database(admin.GetAuthDatabase())
	m.logger.Info("Authenticated", "backend", m.Backend(), "address", m.server.Target(), "user", admin.String())
	return nil
}

func (m *mongoProvisioner) UseDatabase(ctx context.Context, name string) error {
	if m.client == nil {
		return classify("use database", m.Backend(), ErrNotAuthenticated)
	}
	if name == "" {
		return newError("use database", m.Backend(), KindInvalidInput, errors.New("database name is empty"))
	}
	m.db = m.client.Database(name)
	m.logger.Debug("Switched database", "database", name)
	return nil
}

func (m *mongoProvisioner) UserExists(ctx context.Context, username string) (bool, error) {
	if m.db == nil {
		return false, classify("user exists", m.Backend(), ErrNotAuthenticated)
	}
	var res struct {
		Users []bson.M `bson:"users"`
	}
	err := m.db.RunCommand(ctx, usersInfoCommand(username)).Decode(&res)
	if err != nil {
		return false, classify("user exists", m.Backend(), err)
	}
	return len(res.Users) > 0, nil
}

func (m *mongoProvisioner) CreateUser(ctx context.Context, app types.AppCredential) error {
	if m.db == nil {
		return classify("create user", m.Backend(), ErrNotAuthenticated)
	}
	if app.Username == "" || app.Password == "" {
		return newError("create user", m.Backend(), KindInvalidInput, errors.New("username and password are required"))
	}
	if err := m.db.RunCommand(ctx, createUserCommand(app)).Err(); err != nil {
		return classify("create user", m.Backend(), err)
	}
	m.logger.Info("User created", "backend", m.Backend(), "user", app.String(),
		"databases", app.Databases(), "auth_database", m.db.Name())
	return nil
}

func (m *mongoProvisioner) Ping(ctx context.Context) (*database.HealthStatus, error) {
	status := &database.HealthStatus{LastCheckTime: time.Now()}
	if m.client == nil {
		status.LastError = ErrNotAuthenticated.Error()
		return status, classify("ping", m.Backend(), ErrNotAuthenticated)
	}
	err := m.client.Ping(ctx, readpref.Primary())
	status.ResponseTime = time.Since(status.LastCheckTime)
	if err != nil {
		status.LastError = err.Error()
		return status, classify("ping", m.Backend(), err)
	}
	status.Healthy = true
	status.Connected = true
	return status, nil
}

func (m *mongoProvisioner) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client, m.db = nil, nil
	if err != nil {
		return classify("close", m.Backend(), err)
	}
	return nil
}

type mongoVerifier struct {
	server config.ServerConfig
	logger database.Logger
}

func (v *mongoVerifier) Verify(ctx context.Context, app types.AppCredential) (*VerifyReport, error) {
	report := &VerifyReport{Database: app.Database}
	client, err := connectMongo(ctx, v.server, appMongoCredential(app))
	if err != nil {
		return report, classify("verify", config.BackendMongoDB, err)
	}
	defer func() {
		if err := client.Disconnect(context.WithoutCancel(ctx)); err != nil {
			v.logger.Warn("Failed to close verification session", "error", err)
		}
	}()
	report.CanAuthenticate = true

	canary := mongoCanary{coll: client.Database(app.Database).Collection(CanaryName)}
	report.CanRead, report.CanWrite, err = runCanary(ctx, canary, app.Username, expectRead(app, app.Database), app.CanWrite(app.Database))
	if err != nil {
		return report, classify("verify", config.BackendMongoDB, err)
	}

	err = client.Database(types.DefaultAuthDatabase).RunCommand(ctx, listAllUsersCommand()).Err()
	if report.AdminDenied, err = adminDenied(err); err != nil {
		return report, classify("verify admin denied", config.BackendMongoDB, err)
	}
	v.logger.Info("Verification finished", "user", app.Username, "database", app.Database,
		"read", report.CanRead, "write", report.CanWrite, "admin_denied", report.AdminDenied)
	return report, nil
}

// adminDenied interprets the result of an administrative operation run by the
// application user. A refusal is the expected outcome.
func adminDenied(err error) (bool, error) {
	switch {
	case refused(err):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

type mongoCanary struct {
	coll *mongo.Collection
}

func (mongoCanary) prepare(context.Context) error { return nil }

func (p mongoCanary) insert(ctx context.Context, rec *canaryRecord) error {
	_, err := p.coll.InsertOne(ctx, bson.D{
		{Key: "_id", Value: rec.ID},
		{Key: "username", Value: rec.Username},
		{Key: "created_at", Value: rec.CreatedAt},
	})
	return err
}

func (p mongoCanary) lookup(ctx context.Context, id string) (string, error) {
	var back struct {
		Username string `bson:"username"`
	}
	if err := p.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&back); err != nil {
		return "", err
	}
	return back.Username, nil
}

func (p mongoCanary) scan(ctx context.Context) error {
	err := p.coll.FindOne(ctx, bson.D{}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}

func (p mongoCanary) remove(ctx context.Context, id string) error {
	_, err := p.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	return err
}

// adminMongoCredential authenticates against the admin's auth database,
// "admin" unless configured otherwise.
func adminMongoCredential(admin types.AdminCredential) options.Credential {
	return options.Credential{
		AuthSource: admin.GetAuthDatabase(),
		Username:   admin.Username,
		Password:   admin.Password,
	}
}

// appMongoCredential authenticates against the database the user was created in.
func appMongoCredential(app types.AppCredential) options.Credential {
	return options.Credential{
		AuthSource: app.Database,
		Username:   app.Username,
		Password:   app.Password,
	}
}

func usersInfoCommand(username string) bson.D {
	return bson.D{{Key: "usersInfo", Value: username}}
}

func createUserCommand(app types.AppCredential) bson.D {
	grants := app.EffectiveRoles()
	roles := make(bson.A, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, bson.D{{Key: "role", Value: g.Role}, {Key: "db", Value: g.Database}})
	}
	return bson.D{
		{Key: "createUser", Value: app.Username},
		{Key: "pwd", Value: app.Password},
		{Key: "roles", Value: roles},
	}
}

// listAllUsersCommand is an admin-only operation outside any application database.
func listAllUsersCommand() bson.D {
	return bson.D{{Key: "usersInfo", Value: bson.D{{Key: "forAllDBs", Value: true}}}}
}

func mongoTarget(server config.ServerConfig) string {
	if server.URI != "" {
		return server.URI
	}
	return "mongodb://" + server.Address()
}

// connectMongo opens a client and pings the primary, so bad credentials fail here.
func connectMongo(ctx context.Context, server config.ServerConfig, cred options.Credential) (*mongo.Client, error) {
	timeout := server.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(mongoTarget(server)).
		SetAuth(cred).
		SetAppName(appName).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return client, nil
}
