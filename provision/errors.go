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
	"fmt"
	"strings"

	"github.com/tomoncle/grantor/database"
	"go.mongodb.org/mongo-driver/mongo"
)

// Kind buckets a provisioning failure.
type Kind string

const (
	KindAuthFailed   Kind = "auth-failed"
	KindUserExists   Kind = "user-exists"
	KindUnauthorized Kind = "unauthorized"
	KindUnavailable  Kind = "unavailable"
	KindInvalidInput Kind = "invalid-input"
	KindUnknown      Kind = "unknown"
)

// mongo server error codes, see src/mongo/base/error_codes.yml.
const (
	mongoUnauthorized         = 13
	mongoAuthenticationFailed = 18
	mongoUserAlreadyExists    = 51003
)

// ErrNotAuthenticated is returned by operations issued before Authenticate.
var ErrNotAuthenticated = errors.New("no administrative session, call Authenticate first")

// Error is the error type returned by every Provisioner and Verifier method.
type Error struct {
	Op      string
	Backend string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func newError(op, backend string, kind Kind, err error) error {
	return &Error{Op: op, Backend: backend, Kind: kind, Err: err}
}

// classify wraps a driver error into an *Error; nil and *Error pass through.
func classify(op, backend string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Op: op, Backend: backend, Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	if errors.Is(err, ErrNotAuthenticated) {
		return KindInvalidInput
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		switch {
		case se.HasErrorCode(mongoUserAlreadyExists):
			return KindUserExists
		case se.HasErrorCode(mongoAuthenticationFailed):
			return KindAuthFailed
		case se.HasErrorCode(mongoUnauthorized):
			return KindUnauthorized
		}
	}

	if is, sqlErr := database.IsSqlError(err); is {
		switch sqlErr {
		case database.DuplicateUserErr:
			return KindUserExists
		case database.AuthFailedErr:
			return KindAuthFailed
		case database.AccessDeniedErr:
			return KindUnauthorized
		case database.ConnectionErr:
			return KindUnavailable
		case database.UnknownDatabaseErr:
			return KindInvalidInput
		}
	}

	// handshake failures surface as connection errors wrapping the auth error
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication failed"), strings.Contains(msg, "auth error"):
		return KindAuthFailed
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), strings.Contains(msg, "server selection"):
		return KindUnavailable
	}
	return KindUnknown
}
