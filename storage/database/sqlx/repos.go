// Package sqlxrepos implements the data repositories with hand-written SQL,
// using sqlx scan helpers on top of the shared core.DBExecutor.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tmdent/clinlog/core"
)

// Postgres error codes trapped by the repositories.
const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

func getExec(repoExec core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repoExec
}

// trapNoRowsErr maps sql.ErrNoRows to the domain's notFound error; any other
// error is wrapped with msg.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func constraintViolated(err error, code pq.ErrorCode) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == code
}

// validUUID reports whether s parses as a UUID. Query filters use it to turn
// malformed id input into an empty match instead of a cast error.
func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// orderBy renders an ORDER BY clause from ordering, falling back to deflt.
// Fields must be output column names of the enclosing SELECT.
func orderBy(ordering []core.DBOrdering, deflt string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + deflt
	}
	clauses := make([]string, len(ordering))
	for i, ord := range ordering {
		clauses[i] = ord.String()
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
