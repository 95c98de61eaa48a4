package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func TestUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", &mysql.MySQLError{Number: 1452}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: units.slug"), true},
		{"sqlite foreign key", errors.New("FOREIGN KEY constraint failed"), false},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, uniqueViolation(tc.err))
		})
	}
}

func TestConflictOnUnique(t *testing.T) {
	err := conflictOnUnique(errors.New("UNIQUE constraint failed: badges.name"), "Badge name already exists.")
	require.True(t, apperrors.Is(err, apperrors.ErrConflict))
	require.Equal(t, "Badge name already exists.", apperrors.FromError(err).Message)

	other := errors.New("disk I/O error")
	require.Same(t, other, conflictOnUnique(other, "ignored"))
}

func TestNormaliseIDs(t *testing.T) {
	require.Nil(t, normaliseIDs(nil))
	require.Equal(t, []string{"a", "b"}, normaliseIDs([]string{" a", "", "b", "a ", "  "}))
}
