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
	"time"

	"github.com/tomoncle/grantor/types"
	"github.com/uptrace/bun"
)

type Operation string

const (
	OperationProvision Operation = "provision"
	OperationVerify    Operation = "verify"
)

type Outcome string

const (
	OutcomeRunning  Outcome = "running"
	OutcomeCreated  Outcome = "created"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeVerified Outcome = "verified"
	OutcomeFailed   Outcome = "failed"
)

// Record is one provisioning or verification attempt. Passwords are never
// stored.
type Record struct {
	bun.BaseModel `bun:"table:grantor_journal,alias:j"`

	ID         int64            `bun:"id,pk,autoincrement" json:"id"`
	Operation  Operation        `bun:"operation,notnull" json:"operation"`
	Backend    string           `bun:"backend,notnull" json:"backend"`
	Address    string           `bun:"address" json:"address"`
	Database   string           `bun:"db_name,notnull" json:"database"`
	Username   string           `bun:"username,notnull" json:"username"`
	Roles      types.GrantList  `bun:"roles,type:text" json:"roles"`
	Outcome    Outcome          `bun:"outcome,notnull" json:"outcome"`
	ErrorKind  string           `bun:"error_kind" json:"error_kind,omitempty"`
	Error      string           `bun:"error,type:text" json:"error,omitempty"`
	Verified   bool             `bun:"verified,notnull" json:"verified"`
	Report     types.JsonObject `bun:"report,type:text" json:"report,omitempty"`
	StartedAt  time.Time        `bun:"started_at,notnull" json:"started_at"`
	FinishedAt time.Time        `bun:"finished_at,nullzero" json:"finished_at,omitempty"`
}

// Duration is zero while the attempt is running.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
