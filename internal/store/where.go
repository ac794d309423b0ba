package store

import (
	"fmt"
	"strings"
)

// whereBuilder assembles a parameterized WHERE clause. Columns are trusted
// identifiers from this package, never user input.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

// add appends "column = $n". Zero values are skipped so an unset filter
// field matches everything.
func (wb *whereBuilder) add(column string, value any) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	case int:
		if v == 0 {
			return
		}
	case nil:
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// build returns " WHERE ..." and its args, or "" and nil with no conditions.
func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
