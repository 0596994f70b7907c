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
	"context"

	"github.com/tomoncle/grantor/database"
	"github.com/uptrace/bun"
)

// Migrations creates and evolves the journal schema.
func Migrations() []database.MigrationItem {
	models := database.NewModelRegistry(database.NewModelAdapter((*Record)(nil), 0))
	return []database.MigrationItem{
		{
			Version:     "0001",
			Name:        "create_journal",
			Description: "provisioning attempts",
			Up:          database.CreateTables(models),
		},
		{
			Version:     "0002",
			Name:        "index_journal_user",
			Description: "look up attempts by user and database",
			Up: func(ctx context.Context, db bun.IDB) error {
				_, err := db.NewCreateIndex().
					Model((*Record)(nil)).
					Index("grantor_journal_user_idx").
					Column("username", "db_name").
					Exec(ctx)
				return err
			},
		},
	}
}
