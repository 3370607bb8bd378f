package sharded

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("sharded: missing column")

// RequireColumns checks that every name is a column of t.
func RequireColumns(t *Table, names ...string) error {
	var missing []string
	for _, name := range names {
		if t.ColumnIndex(name) < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s (have %s)", ErrMissingColumn,
			strings.Join(missing, ", "), strings.Join(t.Names(), ", "))
	}
	return nil
}
