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
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	DuplicateUserErr
	AuthFailedErr
	AccessDeniedErr
	UnknownDatabaseErr
	ConnectionErr
)

func (e SQLError) String() string {
	switch e {
	case NoRowsErr:
		return "no_rows"
	case NoTableErr:
		return "no_table"
	case ExistTableErr:
		return "exist_table"
	case DuplicateKeyErr:
		return "duplicate_key"
	case DuplicateUserErr:
		return "duplicate_user"
	case AuthFailedErr:
		return "auth_failed"
	case AccessDeniedErr:
		return "access_denied"
	case UnknownDatabaseErr:
		return "unknown_database"
	case ConnectionErr:
		return "connection"
	default:
		return "unknown"
	}
}

// mysql server error numbers, see mysqld_error.h.
var mysqlCodes = map[uint16]SQLError{
	1045: AuthFailedErr,      // ER_ACCESS_DENIED_ERROR
	1044: AccessDeniedErr,    // ER_DBACCESS_DENIED_ERROR
	1142: AccessDeniedErr,    // ER_TABLEACCESS_DENIED_ERROR
	1227: AccessDeniedErr,    // ER_SPECIFIC_ACCESS_DENIED_ERROR
	1410: AccessDeniedErr,    // ER_CANT_CREATE_USER_WITH_GRANT
	1396: DuplicateUserErr,   // ER_CANNOT_USER
	1049: UnknownDatabaseErr, // ER_BAD_DB_ERROR
	1050: ExistTableErr,
	1146: NoTableErr,
	1062: DuplicateKeyErr,
}

// postgres SQLSTATE codes.
var pqCodes = map[pq.ErrorCode]SQLError{
	"28P01": AuthFailedErr, // invalid_password
	"28000": AuthFailedErr, // invalid_authorization_specification
	"42501": AccessDeniedErr,
	"42710": DuplicateUserErr, // duplicate_object, raised for CREATE ROLE
	"3D000": UnknownDatabaseErr,
	"42P07": ExistTableErr,
	"42P01": NoTableErr,
	"23505": DuplicateKeyErr,
	"08001": ConnectionErr,
	"08006": ConnectionErr,
	"57P03": ConnectionErr, // cannot_connect_now
}

// IsSqlError classifies err by driver error codes, falling back to message
// matching for drivers without typed errors (sqlite).
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if kind, ok := mysqlCodes[mysqlErr.Number]; ok {
			return true, kind
		}
		return true, UnknownErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if kind, ok := pqCodes[pqErr.Code]; ok {
			return true, kind
		}
		return true, UnknownErr
	}

	if isConnectionError(err) {
		return true, ConnectionErr
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "no rows in result set"):
		return true, NoRowsErr
	case strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"):
		return true, ExistTableErr
	case strings.Contains(s, "unique constraint failed"):
		return true, DuplicateKeyErr
	}
	return false, UnknownErr
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
