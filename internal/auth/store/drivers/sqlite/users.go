package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, name, username, email, password_hash, roles, email_verified,
	account_locked, ldap_enabled, mfa_state, mfa_enforced, mfa_secret, mfa_last_step,
	mfa_accepted_step, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(sc rowScanner) (domain.User, error) {
	var (
		u                      domain.User
		roles, state           string
		verified, locked, ldap int
		enforced               int
		createdAt, updatedAt   int64
	)
	err := sc.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash, &roles,
		&verified, &locked, &ldap, &state, &enforced, &u.MFASecret, &u.MFALastStep,
		&u.MFAAcceptedStep, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, err
	}

	u.MFAState, err = domain.ParseMFAState(state)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: user %s: %w", u.ID, err)
	}
	u.Roles = splitRoles(roles)
	u.EmailVerified = verified == 1
	u.AccountLocked = locked == 1
	u.LDAPEnabled = ldap == 1
	u.MFAEnforced = enforced == 1
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.MFAState == "" {
		u.MFAState = domain.MFADisabled
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Username, u.Email, u.PasswordHash, joinRoles(u.Roles),
		boolInt(u.EmailVerified), boolInt(u.AccountLocked), boolInt(u.LDAPEnabled),
		string(u.MFAState), boolInt(u.MFAEnforced), u.MFASecret, u.MFALastStep,
		u.MFAAcceptedStep, toUnix(u.CreatedAt), toUnix(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			name = ?, username = ?, email = ?, roles = ?, email_verified = ?,
			account_locked = ?, ldap_enabled = ?, mfa_enforced = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Username, u.Email, joinRoles(u.Roles), boolInt(u.EmailVerified),
		boolInt(u.AccountLocked), boolInt(u.LDAPEnabled), boolInt(u.MFAEnforced),
		toUnix(time.Now()), u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOne(res, nil)
}

func (r *usersRepo) UpdateMFA(
	ctx context.Context,
	userID string,
	state domain.MFAState,
	secret string,
	last domain.OTPStep,
) error {
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE users SET mfa_state = ?, mfa_secret = ?, mfa_last_step = ?, mfa_accepted_step = ?,
			updated_at = ?
		WHERE id = ?`,
		string(state), secret, last.Matched, last.Accepted, toUnix(time.Now()), userID,
	))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, toUnix(time.Now()), userID,
	))
}

// DeleteUser clears the refresh token with its own statement as well as
// through the foreign key cascade.
func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID))
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// Roles are stored space separated. Role names never contain spaces.
func joinRoles(roles []string) string { return strings.Join(domain.NormalizeRoles(roles), " ") }

func splitRoles(s string) []string { return domain.NormalizeRoles(strings.Fields(s)) }
