package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type settingsRepo struct {
	db dbtx
}

func (r *settingsRepo) GetSetting(ctx context.Context, key string) (domain.Setting, error) {
	var (
		s         domain.Setting
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM settings WHERE key = ?`, key,
	).Scan(&s.Key, &s.Value, &updatedAt)
	if err != nil {
		return domain.Setting{}, mapNotFound(err)
	}
	s.UpdatedAt = fromUnix(updatedAt)
	return s, nil
}

func (r *settingsRepo) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Setting
	for rows.Next() {
		var (
			s         domain.Setting
			updatedAt int64
		)
		if err := rows.Scan(&s.Key, &s.Value, &updatedAt); err != nil {
			return nil, err
		}
		s.UpdatedAt = fromUnix(updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *settingsRepo) PutSetting(ctx context.Context, s domain.Setting) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.Key, s.Value, toUnix(s.UpdatedAt),
	)
	return err
}
