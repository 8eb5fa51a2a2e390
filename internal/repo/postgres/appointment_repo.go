package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Virang41/visiting/internal/domain"
)

const appointmentColumns = `id, visitor_id, host_id, purpose, scheduled_at, duration_min, location,
	department, status, approved_by, approved_at, rejection_reason, notes, invite_token, created_at, updated_at`

// AppointmentFilter narrows listings; zero values mean "no constraint".
type AppointmentFilter struct {
	HostID int64
	Status domain.AppointmentStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type AppointmentsRepo interface {
	Create(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error)
	FindByID(ctx context.Context, id int64) (*domain.Appointment, error)
	List(ctx context.Context, f AppointmentFilter) ([]domain.Appointment, error)
	Approve(ctx context.Context, id, approverID int64, at time.Time) (*domain.Appointment, error)
	Reject(ctx context.Context, id, approverID int64, reason string) (*domain.Appointment, error)
}

type AppointmentsRepoImpl struct{ pool *pgxpool.Pool }

func NewAppointmentsRepo(pool *pgxpool.Pool) *AppointmentsRepoImpl {
	return &AppointmentsRepoImpl{pool: pool}
}

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := row.Scan(
		&a.ID, &a.VisitorID, &a.HostID, &a.Purpose, &a.ScheduledAt, &a.DurationMin, &a.Location,
		&a.Department, &a.Status, &a.ApprovedBy, &a.ApprovedAt, &a.RejectionReason, &a.Notes,
		&a.InviteToken, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentsRepoImpl) Create(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error) {
	const q = `
INSERT INTO appointments (visitor_id, host_id, purpose, scheduled_at, duration_min, location, department, status, notes, invite_token)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING ` + appointmentColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanAppointment(r.pool.QueryRow(ctx, q,
		a.VisitorID, a.HostID, a.Purpose, a.ScheduledAt, a.DurationMin, a.Location,
		a.Department, a.Status, a.Notes, a.InviteToken))
}

func (r *AppointmentsRepoImpl) FindByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	const q = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanAppointment(r.pool.QueryRow(ctx, q, id))
}

func (r *AppointmentsRepoImpl) List(ctx context.Context, f AppointmentFilter) ([]domain.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		q += clause + "$" + strconv.Itoa(n)
	}
	if f.HostID != 0 {
		add(` AND host_id=`, f.HostID)
	}
	if f.Status != "" {
		add(` AND status=`, f.Status)
	}
	if f.From != nil {
		add(` AND scheduled_at >= `, *f.From)
	}
	if f.To != nil {
		add(` AND scheduled_at <= `, *f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	q += ` ORDER BY scheduled_at DESC`
	add(` LIMIT `, limit)
	add(` OFFSET `, f.Offset)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Approve only flips a pending appointment; approving anything else reports
// the state conflict to the caller.
func (r *AppointmentsRepoImpl) Approve(ctx context.Context, id, approverID int64, at time.Time) (*domain.Appointment, error) {
	const q = `
UPDATE appointments
SET status=$2, approved_by=$3, approved_at=$4, updated_at=now()
WHERE id=$1 AND status=$5
RETURNING ` + appointmentColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, id, domain.AppointmentApproved, approverID, at, domain.AppointmentPending))
	if errors.Is(err, domain.ErrNotFound) {
		// row exists but in the wrong state?
		if _, findErr := r.FindByID(ctx, id); findErr == nil {
			return nil, domain.ErrInvalidState
		}
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (r *AppointmentsRepoImpl) Reject(ctx context.Context, id, approverID int64, reason string) (*domain.Appointment, error) {
	const q = `
UPDATE appointments
SET status=$2, approved_by=$3, rejection_reason=$4, updated_at=now()
WHERE id=$1 AND status=$5
RETURNING ` + appointmentColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, id, domain.AppointmentRejected, approverID, reason, domain.AppointmentPending))
	if errors.Is(err, domain.ErrNotFound) {
		if _, findErr := r.FindByID(ctx, id); findErr == nil {
			return nil, domain.ErrInvalidState
		}
		return nil, domain.ErrNotFound
	}
	return a, err
}

var _ AppointmentsRepo = (*AppointmentsRepoImpl)(nil)
