package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voxgate/voxgate/internal/database/models"
)

// adminUserRepo implements database.AdminUserRepository over PostgreSQL.
type adminUserRepo struct {
	db *sql.DB
}

// Create inserts a new admin user.
func (r *adminUserRepo) Create(ctx context.Context, user *models.AdminUser) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO admin_users (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING id`,
		user.Username, user.PasswordHash,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("inserting admin user: %w", err)
	}
	return nil
}

// GetByUsername returns an admin user by username, or (nil, nil) if none
// exists.
func (r *adminUserRepo) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var u models.AdminUser
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at, updated_at
		 FROM admin_users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning admin user: %w", err)
	}
	return &u, nil
}

// Count returns the number of admin users.
func (r *adminUserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting admin users: %w", err)
	}
	return count, nil
}
