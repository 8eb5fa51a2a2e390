package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/internal/utils"
)

// VisitorService registers and looks up the people passes get issued to.
type VisitorService struct {
	visitors postgres.VisitorsRepo
}

func NewVisitorService(visitors postgres.VisitorsRepo) *VisitorService {
	return &VisitorService{visitors: visitors}
}

// Register creates a visitor record, reusing an existing one when the email
// is already known so repeat visitors keep their visit history.
func (s *VisitorService) Register(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error) {
	v.Name = strings.TrimSpace(v.Name)
	v.Email = utils.NormalizeEmail(v.Email)
	v.Phone = utils.NormalizePhone(v.Phone)
	if v.Name == "" || !utils.IsValidEmail(v.Email) {
		return nil, domain.ErrInvalidState
	}

	if existing, err := s.visitors.FindByEmail(ctx, v.Email); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.visitors.Create(ctx, v)
}

func (s *VisitorService) Get(ctx context.Context, id int64) (*domain.Visitor, error) {
	return s.visitors.FindByID(ctx, id)
}

func (s *VisitorService) List(ctx context.Context, limit, offset int) ([]domain.Visitor, error) {
	return s.visitors.List(ctx, limit, offset)
}
