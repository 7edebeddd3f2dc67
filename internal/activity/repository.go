package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
)

// ErrRecordNotFound indicates the requested activity record does not exist.
var ErrRecordNotFound = fmt.Errorf("activity: %w", shared.ErrNotFound)

// ListFilter scopes an activity listing. Roles restricts results to records
// whose owning user holds one of the roles; OnlyUserID pins the listing to a
// single user. Both empty means everything.
type ListFilter struct {
	Roles      []rbac.Role
	OnlyUserID int64
	Action     string
	Page       int
	PerPage    int
}

// Repository defines persistence for the append-only activity log.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	FindByID(ctx context.Context, id int64) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
}

const recordColumns = `a.id, a.user_id, u.userid, u.role, a.action, a.detail, a.ip_address, a.user_agent, a.success, a.created_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one record. The log is append-only: there is no update or
// delete path.
func (r *PGRepository) Insert(ctx context.Context, rec *Record) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO user_activities (user_id, action, detail, ip_address, user_agent, success)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		rec.UserID, rec.Action, rec.Detail, rec.IPAddress, rec.UserAgent, rec.Success,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// FindByID fetches one record joined with its owning user.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM user_activities a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.id = $1`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.UserIdentity, &rec.UserRole,
		&rec.Action, &rec.Detail, &rec.IPAddress, &rec.UserAgent, &rec.Success, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List returns a page of records newest first, plus the total count for the
// same filter.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	where := ``
	var args []any
	switch {
	case filter.OnlyUserID > 0:
		args = append(args, filter.OnlyUserID)
		where = ` WHERE a.user_id = $1`
	case len(filter.Roles) > 0:
		names := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			names[i] = string(role)
		}
		args = append(args, names)
		where = ` WHERE u.role = ANY($1)`
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		if where == "" {
			where = fmt.Sprintf(` WHERE a.action = $%d`, len(args))
		} else {
			where += fmt.Sprintf(` AND a.action = $%d`, len(args))
		}
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_activities a JOIN users u ON u.id = a.user_id`+where,
		args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + recordColumns + `
		 FROM user_activities a
		 JOIN users u ON u.id = a.user_id` + where +
		fmt.Sprintf(` ORDER BY a.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.UserIdentity, &rec.UserRole,
			&rec.Action, &rec.Detail, &rec.IPAddress, &rec.UserAgent, &rec.Success, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
