package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsAny adds a case-insensitive substring match of term against any of
// columns. Wildcards in term match literally. Blank terms leave query as is.
// columns must be trusted identifiers.
func ContainsAny(query *gorm.DB, term string, columns ...string) *gorm.DB {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || len(columns) == 0 {
		return query
	}
	pattern := "%" + likeEscaper.Replace(term) + "%"
	clauses := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		clauses[i] = fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column)
		args[i] = pattern
	}
	return query.Where("("+strings.Join(clauses, " OR ")+")", args...)
}
