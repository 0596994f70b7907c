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

// Package secrets resolves password references used in grantor configuration.
//
// A value is either a literal or one of:
//
//	env:NAME              environment variable NAME
//	file:/path/to/secret  file content, surrounding whitespace trimmed
//	keyring:service/user  entry in the OS keyring
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	envPrefix     = "env:"
	filePrefix    = "file:"
	keyringPrefix = "keyring:"
)

// ErrEmpty is returned when a reference resolves to an empty password.
var ErrEmpty = errors.New("secret resolved to an empty value")

// Resolve returns the password value refers to.
func Resolve(value string) (string, error) {
	var (
		secret string
		err    error
	)
	switch {
	case strings.HasPrefix(value, envPrefix):
		name := strings.TrimPrefix(value, envPrefix)
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		secret = v
	case strings.HasPrefix(value, filePrefix):
		path := strings.TrimPrefix(value, filePrefix)
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return "", fmt.Errorf("read secret file: %w", readErr)
		}
		secret = strings.TrimSpace(string(b))
	case strings.HasPrefix(value, keyringPrefix):
		service, user, parseErr := parseKeyringRef(value)
		if parseErr != nil {
			return "", parseErr
		}
		secret, err = keyring.Get(service, user)
		if err != nil {
			return "", fmt.Errorf("keyring lookup %s/%s: %w", service, user, err)
		}
	default:
		secret = value
	}
	if secret == "" {
		return "", ErrEmpty
	}
	return secret, nil
}

// Store saves password in the OS keyring under a keyring:service/user reference.
func Store(ref, password string) error {
	if password == "" {
		return ErrEmpty
	}
	service, user, err := parseKeyringRef(ref)
	if err != nil {
		return err
	}
	return keyring.Set(service, user, password)
}

// Forget removes the keyring entry named by ref.
func Forget(ref string) error {
	service, user, err := parseKeyringRef(ref)
	if err != nil {
		return err
	}
	return keyring.Delete(service, user)
}

// IsReference reports whether value is an env, file or keyring reference
// rather than a literal.
func IsReference(value string) bool {
	return strings.HasPrefix(value, envPrefix) ||
		strings.HasPrefix(value, filePrefix) ||
		strings.HasPrefix(value, keyringPrefix)
}

func parseKeyringRef(ref string) (service, user string, err error) {
	s := strings.TrimPrefix(ref, keyringPrefix)
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("invalid keyring reference %q, want keyring:service/user", ref)
	}
	return s[:i], s[i+1:], nil
}
