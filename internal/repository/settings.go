package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/schoolpost/internal/model"
)

// GetSetting returns the value stored under key.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value); err != nil {
		return "", notFound(err, "setting "+key)
	}
	return value, nil
}

// PutSetting upserts key.
func (r *Repository) PutSetting(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at
	`, key, value, r.now())
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// SaveClassGroup upserts a class group.
func (r *Repository) SaveClassGroup(ctx context.Context, group *model.ClassGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = r.now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO class_groups (id, name, display_order, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, display_order=EXCLUDED.display_order
	`, group.ID, group.Name, group.DisplayOrder, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert class group: %w", err)
	}
	return nil
}

// GetClassGroup returns a class group by id.
func (r *Repository) GetClassGroup(ctx context.Context, id string) (*model.ClassGroup, error) {
	var g model.ClassGroup
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, display_order, created_at FROM class_groups WHERE id=$1`, id,
	).Scan(&g.ID, &g.Name, &g.DisplayOrder, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err, "class group "+id)
	}
	return &g, nil
}

// ListClassGroups returns groups in display order.
func (r *Repository) ListClassGroups(ctx context.Context) ([]model.ClassGroup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, display_order, created_at FROM class_groups ORDER BY display_order, name`)
	if err != nil {
		return nil, fmt.Errorf("query class groups: %w", err)
	}
	defer rows.Close()
	out := make([]model.ClassGroup, 0)
	for rows.Next() {
		var g model.ClassGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.DisplayOrder, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan class group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
