package sqlite

import (
	"fmt"
	"sort"
	"strings"
)

// ops carries the record operations shared by the autocommit store and
// transaction handles. Every method runs against o.q, which is either the
// pooled *sql.DB or a transaction's dedicated *sql.Conn.
type ops struct {
	q querier
}

// buildSetClause turns an updates map into "col1 = ?, col2 = ?" plus the
// matching argument slice, rejecting columns outside the allowlist. Columns
// are sorted so the generated SQL is deterministic.
func buildSetClause(updates map[string]interface{}, allowed map[string]bool) (string, []interface{}, error) {
	if len(updates) == 0 {
		return "", nil, fmt.Errorf("no fields to update")
	}

	cols := make([]string, 0, len(updates))
	for col := range updates {
		if !allowed[col] {
			return "", nil, fmt.Errorf("unknown column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, col+" = ?")
		args = append(args, updates[col])
	}
	return strings.Join(parts, ", "), args, nil
}
