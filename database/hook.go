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

package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// Password literals in CREATE/ALTER ROLE|USER and IDENTIFIED BY clauses.
// Standard SQL strings only escape a quote by doubling it; MySQL also accepts
// backslash escapes.
var (
	secretPattern      = regexp.MustCompile(`(?i)\b(PASSWORD|IDENTIFIED\s+BY)(\s+)'(?:[^']|'')*'`)
	mysqlSecretPattern = regexp.MustCompile(`(?i)\b(PASSWORD|IDENTIFIED\s+BY)(\s+)'(?:[^'\\]|''|\\.)*'`)
)

const redacted = "'******'"

// RedactSecrets masks password literals in a statement rendered for dbType
// (a connection type such as "postgres" or "mysql", or a bun dialect name).
func RedactSecrets(dbType, query string) string {
	pattern := secretPattern
	if strings.EqualFold(dbType, TypeMySQL) {
		pattern = mysqlSecretPattern
	}
	return pattern.ReplaceAllString(query, "$1$2"+redacted)
}

type redactingWriter struct {
	w      io.Writer
	dbType string
}

// NewRedactingWriter returns a writer that masks password literals before
// forwarding each write to w. Used for bundebug output.
func NewRedactingWriter(w io.Writer, dbType string) io.Writer {
	return &redactingWriter{w: w, dbType: dbType}
}

func (r *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(r.w, RedactSecrets(r.dbType, string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// QueryHook logs every statement at debug level with secrets masked and warns
// about statements slower than SlowTime.
type QueryHook struct {
	Logger   Logger
	SlowTime time.Duration
}

var _ bun.QueryHook = (*QueryHook)(nil)

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if h.Logger == nil {
		return
	}
	dur := time.Since(event.StartTime)
	query := RedactSecrets(eventDialect(event), event.Query)

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) && !errors.Is(event.Err, sql.ErrTxDone):
		h.Logger.Debug("statement failed", "query", query, "duration", dur.Round(time.Microsecond), "error", event.Err)
	case h.SlowTime > 0 && dur > h.SlowTime:
		h.Logger.Warn(color.YellowString("slow statement"), "query", query, "duration", dur.Round(time.Microsecond), "threshold", h.SlowTime)
	default:
		h.Logger.Debug(formatOperation(event.Operation(), query), "duration", dur.Round(time.Microsecond))
	}
}

func formatOperation(operation, query string) string {
	switch strings.ToUpper(operation) {
	case "SELECT":
		return color.GreenString(query)
	case "INSERT":
		return color.BlueString(query)
	case "UPDATE":
		return color.YellowString(query)
	case "DELETE":
		return color.MagentaString(query)
	default:
		return color.CyanString(query)
	}
}

func eventDialect(event *bun.QueryEvent) string {
	if event.DB == nil {
		return ""
	}
	return event.DB.Dialect().Name().String()
}
