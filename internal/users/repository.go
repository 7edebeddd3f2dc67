package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/userservice/internal/platform/db"
	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = fmt.Errorf("users: %w", shared.ErrNotFound)

// Repository defines persistence operations for user accounts. Save and
// Delete must enforce the root-admin mutation guard before touching storage.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUserID(ctx context.Context, userid string) (*User, error)
	List(ctx context.Context, roles []rbac.Role, onlyID int64) ([]User, error)
	Create(ctx context.Context, user *User) error
	CreateRootAdmin(ctx context.Context, admin *User) error
	Save(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error
	UpdateLastLogin(ctx context.Context, id int64) error
	WithTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository exposes row-locked operations inside a transaction so that
// check-then-write sequences on a single user are atomic.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*User, error)
	Save(ctx context.Context, user *User) error
}

const userColumns = `id, userid, email, password_hash, role, is_system_admin, is_active, last_login, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UserID, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsSystemAdmin, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByID fetches a user by surrogate id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByUserID fetches a user by its login identity.
func (r *PGRepository) FindByUserID(ctx context.Context, userid string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE userid = $1`, userid))
}

// List returns users filtered by role set or pinned to a single id. Passing
// no roles and onlyID = 0 returns everyone.
func (r *PGRepository) List(ctx context.Context, roles []rbac.Role, onlyID int64) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	switch {
	case onlyID > 0:
		query += ` WHERE id = $1`
		args = append(args, onlyID)
	case len(roles) > 0:
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		query += ` WHERE role = ANY($1)`
		args = append(args, names)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UserID, &u.Email, &u.PasswordHash, &u.Role,
			&u.IsSystemAdmin, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts a new ordinary user and assigns its surrogate id.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (userid, email, password_hash, role, is_system_admin, is_active)
		 VALUES ($1, $2, $3, $4, FALSE, $5)
		 RETURNING id, created_at, updated_at`,
		user.UserID, user.Email, user.PasswordHash, string(user.Role), user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapPGError(err)
}

// CreateRootAdmin inserts the pinned root admin record with surrogate id 1.
// The explicit id bypasses the identity sequence, so the sequence is advanced
// past it afterwards or the next ordinary Create would draw the same id.
func (r *PGRepository) CreateRootAdmin(ctx context.Context, admin *User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, userid, email, password_hash, role, is_system_admin, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE, TRUE)
		 RETURNING created_at, updated_at`,
		admin.ID, admin.UserID, admin.Email, admin.PasswordHash, string(admin.Role),
	).Scan(&admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	_, err = r.pool.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT MAX(id) FROM users), $1))`,
		admin.ID)
	return mapPGError(err)
}

// Save persists field updates. The stored row is locked and compared first
// so the mutation guard always observes a consistent prior state.
func (r *PGRepository) Save(ctx context.Context, user *User) error {
	return r.WithTx(ctx, func(tx TxRepository) error {
		return tx.Save(ctx, user)
	})
}

// Delete removes a user after the deletion guard passes.
func (r *PGRepository) Delete(ctx context.Context, user *User) error {
	if err := GuardDelete(user); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin stamps the last successful login time.
func (r *PGRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	return err
}

// WithTx runs fn inside a transaction exposing row-locked operations.
func (r *PGRepository) WithTx(ctx context.Context, fn func(tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

// GetForUpdate loads a user row under FOR UPDATE so concurrent mutations of
// the same principal serialize.
func (r *pgTxRepository) GetForUpdate(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

// Save writes user fields inside the transaction. The guard runs against the
// row as loaded by GetForUpdate.
func (r *pgTxRepository) Save(ctx context.Context, user *User) error {
	prev, err := r.GetForUpdate(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := GuardSave(prev, user); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx,
		`UPDATE users
		 SET userid = $2, email = $3, password_hash = $4, role = $5,
		     is_system_admin = $6, is_active = $7, updated_at = NOW()
		 WHERE id = $1`,
		user.ID, user.UserID, user.Email, user.PasswordHash, string(user.Role),
		user.IsSystemAdmin, user.IsActive)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicateUserID
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
