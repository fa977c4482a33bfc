package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump is the log-side view of an error: the full chain plus whatever
// the database driver reported.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string

	DBCode       string
	DBConstraint string
	DBTable      string
	DBColumn     string
	DBDetail     string
	DBMessage    string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var (
		pgxErr    *pgconn.PgError
		pqErr     *pq.Error
		sqliteErr sqlite3.Error
	)
	switch {
	case errors.As(err, &pgxErr):
		d.DBCode, d.DBConstraint, d.DBTable = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName
		d.DBColumn, d.DBDetail, d.DBMessage = pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message
	case errors.As(err, &pqErr):
		d.DBCode, d.DBConstraint, d.DBTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
		d.DBColumn, d.DBDetail, d.DBMessage = pqErr.Column, pqErr.Detail, pqErr.Message
	case errors.As(err, &sqliteErr):
		d.DBCode = sqliteErr.ExtendedCode.Error()
		d.DBMessage = sqliteErr.Error()
	}
	return d
}

// Fields flattens the dump into log fields, skipping empty driver fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	for key, value := range map[string]string{
		"db_code":       d.DBCode,
		"db_constraint": d.DBConstraint,
		"db_table":      d.DBTable,
		"db_column":     d.DBColumn,
		"db_detail":     d.DBDetail,
		"db_message":    d.DBMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
