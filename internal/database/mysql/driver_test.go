package mysql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/omem/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"canceled", context.Canceled, errs.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, errs.ErrKindConflict},
		{"access denied", &mysql.MySQLError{Number: 1045}, errs.ErrKindPermissionDenied},
		{"unknown database", &mysql.MySQLError{Number: 1049}, errs.ErrKindConnectionFailed},
		{"unknown column", &mysql.MySQLError{Number: 1054}, errs.ErrKindQueryFailed},
		{"bad connection", mysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err, "op").Kind)
		})
	}
}
