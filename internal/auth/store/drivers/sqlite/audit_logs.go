package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type auditLogsRepo struct {
	db dbtx
}

func (r *auditLogsRepo) CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.User, string(e.Level), e.Message, toUnix(e.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *auditLogsRepo) ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user, level, message, created_at FROM audit_logs
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			level     string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.User, &level, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.Level = domain.AuditLevel(level)
		e.CreatedAt = fromUnix(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditLogsRepo) DeleteAuditEntriesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, toUnix(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
