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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
)

func TestRedactSecrets(t *testing.T) {
	cases := []struct {
		dbType string
		in     string
		want   string
	}{
		{TypePostgres, `CREATE ROLE "video_user" LOGIN PASSWORD 'video_pass'`, `CREATE ROLE "video_user" LOGIN PASSWORD '******'`},
		{TypePostgres, `ALTER ROLE app password 'it''s secret'`, `ALTER ROLE app password '******'`},
		{TypePostgres, `CREATE ROLE "u" LOGIN PASSWORD 's3cret\'`, `CREATE ROLE "u" LOGIN PASSWORD '******'`},
		{TypePostgres, `CREATE ROLE "u" LOGIN PASSWORD 'x\''y'`, `CREATE ROLE "u" LOGIN PASSWORD '******'`},
		{"pg", `CREATE ROLE "u" LOGIN PASSWORD 'a\'`, `CREATE ROLE "u" LOGIN PASSWORD '******'`},
		{TypeMySQL, `CREATE USER 'video_user'@'%' IDENTIFIED BY 'video_pass'`, `CREATE USER 'video_user'@'%' IDENTIFIED BY '******'`},
		{TypeMySQL, `CREATE USER 'u'@'%' identified   by 'a\'b'`, `CREATE USER 'u'@'%' identified   by '******'`},
		{TypeMySQL, `CREATE USER 'u'@'%' IDENTIFIED BY 's3cret\\'`, `CREATE USER 'u'@'%' IDENTIFIED BY '******'`},
		{TypeSQLite, `SELECT * FROM grantor_journal WHERE username = 'video_user'`, `SELECT * FROM grantor_journal WHERE username = 'video_user'`},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RedactSecrets(c.dbType, c.in), c.in)
	}
}

func TestRedactSecretsPostgresRendering(t *testing.T) {
	fmter := schema.NewFormatter(pgdialect.New())
	for _, pw := range []string{`s3cret\`, `x\'y`, `it's`} {
		query := fmter.FormatQuery("CREATE ROLE ? LOGIN PASSWORD ?", bun.Ident("video_user"), pw)
		got := RedactSecrets(TypePostgres, query)
		assert.Equal(t, `CREATE ROLE "video_user" LOGIN PASSWORD '******'`, got, pw)
	}
}

func TestRedactSecretsMySQLRendering(t *testing.T) {
	fmter := schema.NewFormatter(mysqldialect.New())
	for _, pw := range []string{`s3cret\`, `x\'y`, `it's`} {
		query := fmter.FormatQuery("CREATE USER ?@? IDENTIFIED BY ?", "video_user", "%", pw)
		got := RedactSecrets(TypeMySQL, query)
		assert.Equal(t, `CREATE USER 'video_user'@'%' IDENTIFIED BY '******'`, got, pw)
	}
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactingWriter(&buf, TypePostgres)

	in := []byte("[bun] CREATE ROLE app LOGIN PASSWORD 'secret\\'\n")
	n, err := w.Write(in)
	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	assert.Equal(t, "[bun] CREATE ROLE app LOGIN PASSWORD '******'\n", buf.String())
	assert.NotContains(t, buf.String(), "secret")
}
