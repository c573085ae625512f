// Package migration defines a named, ordered schema change applied by internal/db.
package migration

import (
	"database/sql"
	"fmt"
)

type Migration struct {
	Name string
	Func func(*sql.Tx) error
}

func (m *Migration) String() string {
	return fmt.Sprintf("migration %s", m.Name)
}
