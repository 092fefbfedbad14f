package repository

import (
	"context"
	"database/sql"
)

// AllocationRepo persists the local widget host's id table.
type AllocationRepo struct {
	db *sql.DB
}

func NewAllocationRepo(db *sql.DB) *AllocationRepo {
	return &AllocationRepo{db: db}
}

func (r *AllocationRepo) Put(ctx context.Context, a Allocation) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO host_allocations(widget_id, provider, revoked, allocated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(widget_id) DO UPDATE SET
	 provider=excluded.provider,
	 revoked=excluded.revoked;
	`, a.WidgetID, a.Provider, a.Revoked)
	return err
}

func (r *AllocationRepo) Delete(ctx context.Context, widgetID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM host_allocations WHERE widget_id = ?`, widgetID)
	return err
}

func (r *AllocationRepo) List(ctx context.Context) ([]Allocation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT widget_id, provider, revoked FROM host_allocations ORDER BY widget_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.WidgetID, &a.Provider, &a.Revoked); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
