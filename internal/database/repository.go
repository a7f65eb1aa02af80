package database

import (
	"context"

	"github.com/voxgate/voxgate/internal/database/models"
)

// TenantRepository manages tenants. Lookups return (nil, nil) when no row
// matches: an unknown dialed number is an expected state handled with the
// fallback prompt, not an error.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetByDialedNumber(ctx context.Context, number string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// CallLogFilter narrows call log listings.
type CallLogFilter struct {
	TenantID int64 // 0 = all tenants
	Status   string
	Limit    int
	Offset   int
}

// CallLogRepository manages per-call log records.
type CallLogRepository interface {
	// Start opens a log entry for a newly connected call and returns its id.
	Start(ctx context.Context, tenantID int64, streamSID, callSID, dialedNumber string) (int64, error)
	// End closes an entry with the call duration and final status.
	End(ctx context.Context, id int64, durationSeconds int, status string) error
	GetByID(ctx context.Context, id int64) (*models.CallLogEntry, error)
	List(ctx context.Context, filter CallLogFilter) ([]models.CallLogEntry, int, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// AdminUserRepository manages management API operator accounts.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
}

// Store bundles the repositories a backend provides. Both the embedded
// SQLite store and the PostgreSQL store implement it.
type Store interface {
	Tenants() TenantRepository
	CallLogs() CallLogRepository
	AdminUsers() AdminUserRepository
	Close() error
}
