package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/safar/renew-path-trade/internal/database"
)

// Cond is a SQL fragment and the arguments for its placeholders, e.g.
// C("recycler_id = ?", id).
type Cond struct {
	Expr string
	Args []any
}

func C(expr string, args ...any) Cond {
	return Cond{Expr: expr, Args: args}
}

// Transition describes a guarded status change: the row identified by ID moves
// to To only if its status is one of From and every Where condition holds.
type Transition struct {
	Table string
	ID    string
	From  []string
	To    string
	Set   []Cond
	Where []Cond
}

var guardedTables = map[string]bool{
	TableProducts: true,
	TableOrders:   true,
	TableRequests: true,
}

// Advance applies t as a single UPDATE whose WHERE clause carries the guard.
// It returns database.ErrStaleState when no row matched, so two callers racing
// on the same row see exactly one success.
func Advance(ctx context.Context, db sqlx.ExtContext, t Transition) error {
	if !guardedTables[t.Table] {
		return fmt.Errorf("advance: unknown table %q", t.Table)
	}
	if len(t.From) == 0 {
		return fmt.Errorf("advance %s: no source states", t.Table)
	}

	set := []string{"status = ?", "updated_at = ?"}
	args := []any{t.To, now()}
	for _, c := range t.Set {
		set = append(set, c.Expr)
		args = append(args, c.Args...)
	}

	where := []string{"id = ?", "status IN (?)"}
	args = append(args, t.ID, t.From)
	for _, c := range t.Where {
		where = append(where, c.Expr)
		args = append(args, c.Args...)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		t.Table, strings.Join(set, ", "), strings.Join(where, " AND "))

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return fmt.Errorf("advance %s: %w", t.Table, err)
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("advance %s to %s: %w", t.Table, t.To, database.Translate(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrStaleState
	}

	return nil
}
