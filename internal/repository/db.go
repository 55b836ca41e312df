package repository

import (
	"context"
	"database/sql"
	"math"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// boundedMax stores an unbounded budget maximum as NULL
func boundedMax(max float64) sql.NullFloat64 {
	if math.IsInf(max, 1) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: max, Valid: true}
}

func unboundedMax(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
