package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Virang41/visiting/internal/domain"
)

const visitorColumns = `id, name, email, phone, company, id_type, id_number, user_id, visit_count, created_at, updated_at`

type VisitorsRepo interface {
	Create(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error)
	FindByID(ctx context.Context, id int64) (*domain.Visitor, error)
	FindByEmail(ctx context.Context, email string) (*domain.Visitor, error)
	FindByUserID(ctx context.Context, userID int64) (*domain.Visitor, error)
	List(ctx context.Context, limit, offset int) ([]domain.Visitor, error)
}

type VisitorsRepoImpl struct{ pool *pgxpool.Pool }

func NewVisitorsRepo(pool *pgxpool.Pool) *VisitorsRepoImpl { return &VisitorsRepoImpl{pool: pool} }

func scanVisitor(row pgx.Row) (*domain.Visitor, error) {
	var v domain.Visitor
	if err := row.Scan(
		&v.ID, &v.Name, &v.Email, &v.Phone, &v.Company, &v.IDType, &v.IDNumber,
		&v.UserID, &v.VisitCount, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *VisitorsRepoImpl) Create(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error) {
	const q = `
INSERT INTO visitors (name, email, phone, company, id_type, id_number, user_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING ` + visitorColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, v.Name, v.Email, v.Phone, v.Company, v.IDType, v.IDNumber, v.UserID))
}

func (r *VisitorsRepoImpl) FindByID(ctx context.Context, id int64) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorColumns + ` FROM visitors WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, id))
}

func (r *VisitorsRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorColumns + ` FROM visitors WHERE lower(email)=lower($1) ORDER BY id LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, email))
}

func (r *VisitorsRepoImpl) FindByUserID(ctx context.Context, userID int64) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorColumns + ` FROM visitors WHERE user_id=$1 ORDER BY id LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanVisitor(r.pool.QueryRow(ctx, q, userID))
}

func (r *VisitorsRepoImpl) List(ctx context.Context, limit, offset int) ([]domain.Visitor, error) {
	const q = `SELECT ` + visitorColumns + ` FROM visitors ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

var _ VisitorsRepo = (*VisitorsRepoImpl)(nil)
