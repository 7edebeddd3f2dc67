package activity

import (
	"context"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// Service applies role-scoped visibility on top of the activity log.
// Administrators see everything, teachers see teacher and student activity,
// students see only their own.
type Service struct {
	repo Repository
}

// NewService constructs the activity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListParams narrows a listing beyond the requester's visibility scope.
type ListParams struct {
	Action  string
	Page    int
	PerPage int
}

// List returns the requester's visible slice of the log, newest first.
func (s *Service) List(ctx context.Context, requester *users.User, params ListParams) ([]Record, shared.Pagination, error) {
	filter := ListFilter{
		Action:  params.Action,
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	switch {
	case requester.IsAdmin():
	case requester.Role == rbac.RoleTeacher:
		filter.Roles = []rbac.Role{rbac.RoleTeacher, rbac.RoleStudent}
	default:
		filter.OnlyUserID = requester.ID
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(params.Page, params.PerPage, total), nil
}

// Get returns one record if it falls inside the requester's visibility scope.
// Out-of-scope records surface as not found, never as forbidden.
func (s *Service) Get(ctx context.Context, requester *users.User, id int64) (*Record, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case requester.IsAdmin():
	case requester.Role == rbac.RoleTeacher:
		if rec.UserRole != rbac.RoleTeacher && rec.UserRole != rbac.RoleStudent {
			return nil, ErrRecordNotFound
		}
	default:
		if rec.UserID != requester.ID {
			return nil, ErrRecordNotFound
		}
	}
	return rec, nil
}
