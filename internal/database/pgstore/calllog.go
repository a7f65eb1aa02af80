package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/models"
)

// callLogRepo implements database.CallLogRepository over PostgreSQL.
type callLogRepo struct {
	db *sql.DB
}

const callLogColumns = `id, tenant_id, stream_sid, call_sid, dialed_number,
	 duration_seconds, status, started_at, ended_at`

// Start opens a call log entry in the in_progress state.
func (r *callLogRepo) Start(ctx context.Context, tenantID int64, streamSID, callSID, dialedNumber string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO call_logs (tenant_id, stream_sid, call_sid, dialed_number, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		tenantID, streamSID, callSID, dialedNumber, models.CallStatusInProgress,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting call log: %w", err)
	}
	return id, nil
}

// End closes a call log entry with its duration and final status.
func (r *callLogRepo) End(ctx context.Context, id int64, durationSeconds int, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_logs SET duration_seconds = $1, status = $2, ended_at = NOW()
		 WHERE id = $3`,
		durationSeconds, status, id,
	)
	if err != nil {
		return fmt.Errorf("closing call log: %w", err)
	}
	return nil
}

// GetByID returns a call log entry by ID.
func (r *callLogRepo) GetByID(ctx context.Context, id int64) (*models.CallLogEntry, error) {
	var e models.CallLogEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT `+callLogColumns+` FROM call_logs WHERE id = $1`, id,
	).Scan(&e.ID, &e.TenantID, &e.StreamSID, &e.CallSID, &e.DialedNumber,
		&e.DurationSeconds, &e.Status, &e.StartedAt, &e.EndedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call log: %w", err)
	}
	return &e, nil
}

// List returns call log entries matching the filter, along with the total count.
func (r *callLogRepo) List(ctx context.Context, filter database.CallLogFilter) ([]models.CallLogEntry, int, error) {
	where := "1=1"
	args := []any{}

	if filter.TenantID != 0 {
		args = append(args, filter.TenantID)
		where += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM call_logs WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call logs: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM call_logs WHERE %s
		 ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		callLogColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing call logs: %w", err)
	}
	defer rows.Close()

	var entries []models.CallLogEntry
	for rows.Next() {
		var e models.CallLogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.StreamSID, &e.CallSID,
			&e.DialedNumber, &e.DurationSeconds, &e.Status,
			&e.StartedAt, &e.EndedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning call log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating call log rows: %w", err)
	}

	return entries, total, nil
}

// CountByStatus returns the number of call log entries per status.
func (r *callLogRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM call_logs GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("counting call logs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count row: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status count rows: %w", err)
	}

	return counts, nil
}
