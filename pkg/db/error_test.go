package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgconn", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgconn other code", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "pq", err: &pq.Error{Code: "23505"}, want: true},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: used_qr_codes.qr_code_id"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNewTestDatabasesAreIsolated(t *testing.T) {
	type row struct {
		ID int64 `gorm:"primaryKey"`
	}
	first, err := NewTest()
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := NewTest()
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if err := first.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if second.Migrator().HasTable(&row{}) {
		t.Fatalf("expected second database to be empty")
	}
}
