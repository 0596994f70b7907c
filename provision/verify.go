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
	"fmt"
	"strings"
	"time"

	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun"
)

// CanaryName is the table or collection verification writes to. It is left
// empty after a successful run.
const CanaryName = "grantor_canary"

// VerifyReport is what an application user was able to do.
type VerifyReport struct {
	Database        string `json:"database"`
	CanAuthenticate bool   `json:"can_authenticate"`
	CanRead         bool   `json:"can_read"`
	CanWrite        bool   `json:"can_write"`
	AdminDenied     bool   `json:"admin_denied"`
}

// Check compares the report with what the grants of app promise.
func (r *VerifyReport) Check(app types.AppCredential) error {
	var problems []string
	if !r.CanAuthenticate {
		problems = append(problems, "cannot authenticate")
	}
	if expectRead(app, r.Database) && !r.CanRead {
		problems = append(problems, "cannot read "+r.Database)
	}
	if app.CanWrite(r.Database) && !r.CanWrite {
		problems = append(problems, "cannot write "+r.Database)
	}
	if !r.AdminDenied {
		problems = append(problems, "administrative operation was not refused")
	}
	if len(problems) > 0 {
		return fmt.Errorf("verification of %s failed: %s", app.Username, strings.Join(problems, ", "))
	}
	return nil
}

// Fields flattens the report for the journal.
func (r *VerifyReport) Fields() types.JsonObject {
	return types.JsonObject{
		"database":         r.Database,
		"can_authenticate": r.CanAuthenticate,
		"can_read":         r.CanRead,
		"can_write":        r.CanWrite,
		"admin_denied":     r.AdminDenied,
	}
}

func expectRead(app types.AppCredential, db string) bool {
	for _, g := range app.GrantsOn(db) {
		if types.ParseRole(g.Role).CanRead() {
			return true
		}
	}
	return false
}

type canaryRecord struct {
	bun.BaseModel `bun:"table:grantor_canary"`

	ID        string    `bun:"id,pk"`
	Username  string    `bun:"username,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// canaryTarget is the table or collection a verification session exercises.
type canaryTarget interface {
	// prepare makes sure rows can be inserted.
	prepare(ctx context.Context) error
	insert(ctx context.Context, rec *canaryRecord) error
	// lookup returns the username stored under id.
	lookup(ctx context.Context, id string) (string, error)
	// scan reads without expecting any row.
	scan(ctx context.Context) error
	remove(ctx context.Context, id string) error
}

// runCanary writes, reads back and deletes one canary record when write is set,
// and only scans when read is set. A refused read is reported as
// canRead=false, not as an error.
func runCanary(ctx context.Context, target canaryTarget, username string, read, write bool) (canRead, canWrite bool, err error) {
	if !write {
		if !read {
			return false, false, nil
		}
		switch err := target.scan(ctx); {
		case refused(err):
			return false, false, nil
		case err != nil:
			return false, false, fmt.Errorf("read canary: %w", err)
		}
		return true, false, nil
	}

	if err := target.prepare(ctx); err != nil {
		return false, false, fmt.Errorf("create canary table: %w", err)
	}
	now := time.Now().UTC()
	rec := &canaryRecord{
		ID:        fmt.Sprintf("%s-%d", username, now.UnixNano()),
		Username:  username,
		CreatedAt: now,
	}
	if err := target.insert(ctx, rec); err != nil {
		return false, false, fmt.Errorf("insert canary row: %w", err)
	}
	canWrite = true

	if read {
		back, err := target.lookup(ctx, rec.ID)
		switch {
		case refused(err):
		case err != nil:
			return false, canWrite, fmt.Errorf("read canary row: %w", err)
		default:
			canRead = back == username
		}
	}

	if err := target.remove(ctx, rec.ID); err != nil {
		return canRead, false, fmt.Errorf("delete canary row: %w", err)
	}
	return canRead, canWrite, nil
}

type sqlCanary struct {
	db     bun.IDB
	logger database.Logger
}

func (p sqlCanary) prepare(ctx context.Context) error {
	_, err := p.db.NewCreateTable().Model((*canaryRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (p sqlCanary) insert(ctx context.Context, rec *canaryRecord) error {
	_, err := p.db.NewInsert().Model(rec).Exec(ctx)
	return err
}

func (p sqlCanary) lookup(ctx context.Context, id string) (string, error) {
	var back canaryRecord
	if err := p.db.NewSelect().Model(&back).Where("id = ?", id).Scan(ctx); err != nil {
		return "", err
	}
	return back.Username, nil
}

// scan treats a missing canary table as readable: the session is up and only
// the object is absent.
func (p sqlCanary) scan(ctx context.Context) error {
	_, err := p.db.NewSelect().Model((*canaryRecord)(nil)).Count(ctx)
	if is, kind := database.IsSqlError(err); is && kind == database.NoTableErr {
		p.logger.Warn("Canary table missing, read check inconclusive", "table", CanaryName)
		return nil
	}
	return err
}

func (p sqlCanary) remove(ctx context.Context, id string) error {
	_, err := p.db.NewDelete().Model((*canaryRecord)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// canarySQL runs the canary against the grantor_canary table of db.
func canarySQL(ctx context.Context, db bun.IDB, username string, read, write bool, logger database.Logger) (canRead, canWrite bool, err error) {
	return runCanary(ctx, sqlCanary{db: db, logger: logger}, username, read, write)
}

// refused reports whether err is the server denying a privileged operation.
func refused(err error) bool {
	return err != nil && kindOf(err) == KindUnauthorized
}
