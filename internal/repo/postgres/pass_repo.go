package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Virang41/visiting/internal/domain"
)

const passColumns = `id, token, appointment_id, visitor_id, host_id, issued_by, location,
	valid_from, valid_to, status, scan_payload, created_at, updated_at`

// IssueTx is the view the pass issuer gets inside the issuance transaction.
// The appointment row is locked for the duration, so the existence check,
// the insert, the fulfillment and the visit-count bump commit together or
// not at all.
type IssueTx interface {
	Appointment() *domain.Appointment
	Visitor() *domain.Visitor
	ActivePass(ctx context.Context) (*domain.Pass, error)
	InsertPass(ctx context.Context, p *domain.Pass) error
	FulfillAppointment(ctx context.Context) error
	BumpVisitCount(ctx context.Context) error
}

type PassesRepo interface {
	// IssueTx locks the appointment row and runs fn inside one transaction.
	// A missing appointment surfaces as domain.ErrNotFound before fn runs.
	IssueTx(ctx context.Context, appointmentID int64, fn func(ctx context.Context, tx IssueTx) (*domain.Pass, error)) (*domain.Pass, error)
	FindByID(ctx context.Context, id int64) (*domain.Pass, error)
	FindByToken(ctx context.Context, token string) (*domain.Pass, error)
	ListByVisitor(ctx context.Context, visitorID int64) ([]domain.Pass, error)
	List(ctx context.Context, status domain.PassStatus, limit, offset int) ([]domain.Pass, error)
	SetStatus(ctx context.Context, id int64, status domain.PassStatus) (*domain.Pass, error)
}

type PassesRepoImpl struct{ pool *pgxpool.Pool }

func NewPassesRepo(pool *pgxpool.Pool) *PassesRepoImpl { return &PassesRepoImpl{pool: pool} }

func scanPass(row pgx.Row) (*domain.Pass, error) {
	var p domain.Pass
	if err := row.Scan(
		&p.ID, &p.Token, &p.AppointmentID, &p.VisitorID, &p.HostID, &p.IssuedBy, &p.Location,
		&p.ValidFrom, &p.ValidTo, &p.Status, &p.ScanPayload, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

type issueTx struct {
	tx      pgx.Tx
	appt    *domain.Appointment
	visitor *domain.Visitor
}

func (t *issueTx) Appointment() *domain.Appointment { return t.appt }
func (t *issueTx) Visitor() *domain.Visitor         { return t.visitor }

func (t *issueTx) ActivePass(ctx context.Context) (*domain.Pass, error) {
	const q = `SELECT ` + passColumns + ` FROM passes WHERE appointment_id=$1 AND status=$2`
	p, err := scanPass(t.tx.QueryRow(ctx, q, t.appt.ID, domain.PassActive))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (t *issueTx) InsertPass(ctx context.Context, p *domain.Pass) error {
	const q = `
INSERT INTO passes (token, appointment_id, visitor_id, host_id, issued_by, location, valid_from, valid_to, status, scan_payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at`
	return t.tx.QueryRow(ctx, q,
		p.Token, p.AppointmentID, p.VisitorID, p.HostID, p.IssuedBy, p.Location,
		p.ValidFrom, p.ValidTo, p.Status, p.ScanPayload,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (t *issueTx) FulfillAppointment(ctx context.Context) error {
	const q = `UPDATE appointments SET status=$2, updated_at=now() WHERE id=$1`
	_, err := t.tx.Exec(ctx, q, t.appt.ID, domain.AppointmentFulfilled)
	return err
}

func (t *issueTx) BumpVisitCount(ctx context.Context) error {
	const q = `UPDATE visitors SET visit_count=visit_count+1, updated_at=now() WHERE id=$1`
	_, err := t.tx.Exec(ctx, q, t.appt.VisitorID)
	return err
}

func (r *PassesRepoImpl) IssueTx(ctx context.Context, appointmentID int64, fn func(ctx context.Context, tx IssueTx) (*domain.Pass, error)) (*domain.Pass, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result *domain.Pass
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Lock the appointment so concurrent issue calls serialize on it.
		const q = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1 FOR UPDATE`
		appt, err := scanAppointment(tx.QueryRow(ctx, q, appointmentID))
		if err != nil {
			return err
		}

		const vq = `SELECT ` + visitorColumns + ` FROM visitors WHERE id=$1`
		visitor, err := scanVisitor(tx.QueryRow(ctx, vq, appt.VisitorID))
		if err != nil {
			return err
		}

		result, err = fn(ctx, &issueTx{tx: tx, appt: appt, visitor: visitor})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PassesRepoImpl) FindByID(ctx context.Context, id int64) (*domain.Pass, error) {
	const q = `SELECT ` + passColumns + ` FROM passes WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPass(r.pool.QueryRow(ctx, q, id))
}

func (r *PassesRepoImpl) FindByToken(ctx context.Context, token string) (*domain.Pass, error) {
	const q = `SELECT ` + passColumns + ` FROM passes WHERE token=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPass(r.pool.QueryRow(ctx, q, token))
}

func (r *PassesRepoImpl) ListByVisitor(ctx context.Context, visitorID int64) ([]domain.Pass, error) {
	const q = `SELECT ` + passColumns + ` FROM passes WHERE visitor_id=$1 ORDER BY created_at DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, visitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPasses(rows)
}

func (r *PassesRepoImpl) List(ctx context.Context, status domain.PassStatus, limit, offset int) ([]domain.Pass, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		const q = `SELECT ` + passColumns + ` FROM passes WHERE status=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = r.pool.Query(ctx, q, status, limit, offset)
	} else {
		const q = `SELECT ` + passColumns + ` FROM passes ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = r.pool.Query(ctx, q, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPasses(rows)
}

func (r *PassesRepoImpl) SetStatus(ctx context.Context, id int64, status domain.PassStatus) (*domain.Pass, error) {
	const q = `UPDATE passes SET status=$2, updated_at=now() WHERE id=$1 RETURNING ` + passColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPass(r.pool.QueryRow(ctx, q, id, status))
}

func collectPasses(rows pgx.Rows) ([]domain.Pass, error) {
	var out []domain.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

var _ PassesRepo = (*PassesRepoImpl)(nil)
