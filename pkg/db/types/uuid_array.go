package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// UUIDArray maps to a Postgres uuid[] column. Other dialects store the same
// array literal as text.
type UUIDArray []uuid.UUID

func (UUIDArray) GormDataType() string {
	return "uuid_array"
}

func (UUIDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "uuid[]"
	}
	return "text"
}

func (a *UUIDArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = UUIDArray{}
		return nil
	case string:
		return a.parse(v)
	case []byte:
		return a.parse(string(v))
	default:
		return fmt.Errorf("UUIDArray: unsupported Scan type %T", src)
	}
}

func (a UUIDArray) Value() (driver.Value, error) {
	parts := make([]string, 0, len(a))
	for _, id := range a {
		parts = append(parts, id.String())
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether id is part of the array.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, candidate := range a {
		if candidate == id {
			return true
		}
	}
	return false
}

func (a *UUIDArray) parse(s string) error {
	body := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "{"), "}")
	if strings.TrimSpace(body) == "" {
		*a = UUIDArray{}
		return nil
	}

	raw := strings.Split(body, ",")
	out := make(UUIDArray, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(strings.Trim(r, `"`)))
		if err != nil {
			return fmt.Errorf("UUIDArray: parse %q: %w", r, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}
