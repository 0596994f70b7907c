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

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JsonObject is a JSON column mapped to a generic object.
type JsonObject map[string]interface{}

// GrantList is a JSON column holding role grants.
type GrantList []RoleGrant

// Value implements driver.Valuer for JsonObject.
func (j JsonObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JsonObject.
func (j *JsonObject) Scan(value interface{}) error {
	*j = make(JsonObject)
	return scanJSON(value, j)
}

// Value implements driver.Valuer for GrantList.
func (g GrantList) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for GrantList.
func (g *GrantList) Scan(value interface{}) error {
	*g = make(GrantList, 0)
	return scanJSON(value, g)
}

// sqlite drivers hand TEXT back as string, mysql and postgres as []byte.
func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", value)
	}
}
