package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voxgate/voxgate/internal/database/models"
)

// tenantRepo implements database.TenantRepository over PostgreSQL.
type tenantRepo struct {
	db *sql.DB
}

const tenantColumns = `id, name, dialed_number, system_prompt, escalation_phone,
	 opening_hours, address, created_at, updated_at`

// Create inserts a new tenant.
func (r *tenantRepo) Create(ctx context.Context, tenant *models.Tenant) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tenants (name, dialed_number, system_prompt, escalation_phone,
		 opening_hours, address)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		tenant.Name, tenant.DialedNumber, tenant.SystemPrompt,
		tenant.EscalationPhone, tenant.OpeningHours, tenant.Address,
	).Scan(&tenant.ID)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

// GetByID returns a tenant by ID.
func (r *tenantRepo) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id,
	))
}

// GetByDialedNumber returns the tenant that owns the given phone number, or
// (nil, nil) if no tenant is registered for it.
func (r *tenantRepo) GetByDialedNumber(ctx context.Context, number string) (*models.Tenant, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE dialed_number = $1`, number,
	))
}

// List returns all tenants ordered by name.
func (r *tenantRepo) List(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.DialedNumber, &t.SystemPrompt,
			&t.EscalationPhone, &t.OpeningHours, &t.Address,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenant rows: %w", err)
	}

	return tenants, nil
}

// Update modifies an existing tenant.
func (r *tenantRepo) Update(ctx context.Context, tenant *models.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET name = $1, dialed_number = $2, system_prompt = $3,
		 escalation_phone = $4, opening_hours = $5, address = $6,
		 updated_at = NOW()
		 WHERE id = $7`,
		tenant.Name, tenant.DialedNumber, tenant.SystemPrompt,
		tenant.EscalationPhone, tenant.OpeningHours, tenant.Address, tenant.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	return nil
}

// Delete removes a tenant and cascades to its call logs.
func (r *tenantRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	return nil
}

// Count returns the number of tenants.
func (r *tenantRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting tenants: %w", err)
	}
	return count, nil
}

func (r *tenantRepo) scanOne(row *sql.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.DialedNumber, &t.SystemPrompt,
		&t.EscalationPhone, &t.OpeningHours, &t.Address,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}
	return &t, nil
}
