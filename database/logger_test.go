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
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tomoncle/grantor/utils"
)

func TestInitLoggerKeepsInstalledLogger(t *testing.T) {
	current := GetLogger()

	InitLogger(nil)
	InitLogger(NopLogger())
	assert.Equal(t, current, GetLogger())
}

func TestToFields(t *testing.T) {
	assert.Equal(t, logrus.Fields{"user": "video_user", "roles": 1}, toFields("user", "video_user", "roles", 1))
	assert.Equal(t, logrus.Fields{"a": 1, "_extra": "dangling"}, toFields("a", 1, "dangling"))
	assert.Empty(t, toFields())
}

func TestDefaultLoggerWritesThroughNamedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("DBLOGTEST")
	utils.ConfigureOutput(&buf)
	t.Cleanup(func() { utils.ConfigureOutput(os.Stderr) })

	l.Warn("slow statement", "duration", "2s")
	assert.Contains(t, buf.String(), "slow statement")
	assert.Contains(t, buf.String(), "DBLOGTEST")
}
