package repository

import (
	"database/sql"
	"errors"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate is returned when an insert hits a uniqueness
	// constraint. The importer treats duplicate scores as skips, not
	// failures.
	ErrDuplicate = errors.New("repository: duplicate row")
)

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshal(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// nullableInt maps sql NULL to a nil *int.
func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
