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

const checkEventColumns = `id, pass_id, visitor_id, type, timestamp, scanned_by, location, method, remarks`

// ScanTx is the resolver's view inside the scan transaction. The pass row is
// held FOR UPDATE, so reading the tail of the event log and appending the
// next event is one atomically-ordered operation per pass: two concurrent
// scans can never both see the same tail.
type ScanTx interface {
	Pass() *domain.Pass
	Visitor() *domain.Visitor
	Host() *domain.UserInfo
	LastType(ctx context.Context) (domain.CheckType, bool, error)
	Append(ctx context.Context, ev *domain.CheckEvent) error
	SetPassStatus(ctx context.Context, status domain.PassStatus) error
}

// CheckEventFilter narrows log listings; zero values mean "no constraint".
type CheckEventFilter struct {
	Type   domain.CheckType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type CheckEventsRepo interface {
	// ScanTx locks the pass row by token and runs fn in one transaction.
	// An unknown token surfaces as domain.ErrNotFound before fn runs.
	ScanTx(ctx context.Context, token string, fn func(ctx context.Context, tx ScanTx) (*domain.CheckEvent, error)) (*domain.CheckEvent, error)
	List(ctx context.Context, f CheckEventFilter) ([]domain.CheckEvent, error)
	ListForPass(ctx context.Context, passID int64) ([]domain.CheckEvent, error)
}

type CheckEventsRepoImpl struct{ pool *pgxpool.Pool }

func NewCheckEventsRepo(pool *pgxpool.Pool) *CheckEventsRepoImpl {
	return &CheckEventsRepoImpl{pool: pool}
}

func scanCheckEvent(row pgx.Row) (*domain.CheckEvent, error) {
	var ev domain.CheckEvent
	if err := row.Scan(
		&ev.ID, &ev.PassID, &ev.VisitorID, &ev.Type, &ev.Timestamp,
		&ev.ScannedBy, &ev.Location, &ev.Method, &ev.Remarks,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

type scanTx struct {
	tx      pgx.Tx
	pass    *domain.Pass
	visitor *domain.Visitor
	host    *domain.UserInfo
}

func (t *scanTx) Pass() *domain.Pass       { return t.pass }
func (t *scanTx) Visitor() *domain.Visitor { return t.visitor }
func (t *scanTx) Host() *domain.UserInfo   { return t.host }

func (t *scanTx) LastType(ctx context.Context) (domain.CheckType, bool, error) {
	const q = `
SELECT type FROM check_events
WHERE pass_id=$1
ORDER BY timestamp DESC, id DESC
LIMIT 1`
	var typ domain.CheckType
	err := t.tx.QueryRow(ctx, q, t.pass.ID).Scan(&typ)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return typ, true, nil
}

func (t *scanTx) Append(ctx context.Context, ev *domain.CheckEvent) error {
	const q = `
INSERT INTO check_events (pass_id, visitor_id, type, timestamp, scanned_by, location, method, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id`
	return t.tx.QueryRow(ctx, q,
		ev.PassID, ev.VisitorID, ev.Type, ev.Timestamp, ev.ScannedBy, ev.Location, ev.Method, ev.Remarks,
	).Scan(&ev.ID)
}

func (t *scanTx) SetPassStatus(ctx context.Context, status domain.PassStatus) error {
	const q = `UPDATE passes SET status=$2, updated_at=now() WHERE id=$1`
	if _, err := t.tx.Exec(ctx, q, t.pass.ID, status); err != nil {
		return err
	}
	t.pass.Status = status
	return nil
}

func (r *CheckEventsRepoImpl) ScanTx(ctx context.Context, token string, fn func(ctx context.Context, tx ScanTx) (*domain.CheckEvent, error)) (*domain.CheckEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result *domain.CheckEvent
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `SELECT ` + passColumns + ` FROM passes WHERE token=$1 FOR UPDATE`
		pass, err := scanPass(tx.QueryRow(ctx, q, token))
		if err != nil {
			return err
		}

		const vq = `SELECT ` + visitorColumns + ` FROM visitors WHERE id=$1`
		visitor, err := scanVisitor(tx.QueryRow(ctx, vq, pass.VisitorID))
		if err != nil {
			return err
		}

		var host domain.UserInfo
		const hq = `SELECT id, role, email, name, phone, department, is_active FROM users WHERE id=$1`
		if err := tx.QueryRow(ctx, hq, pass.HostID).Scan(
			&host.ID, &host.Role, &host.Email, &host.Name, &host.Phone, &host.Department, &host.IsActive,
		); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		result, err = fn(ctx, &scanTx{tx: tx, pass: pass, visitor: visitor, host: &host})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *CheckEventsRepoImpl) List(ctx context.Context, f CheckEventFilter) ([]domain.CheckEvent, error) {
	q := `SELECT ` + checkEventColumns + ` FROM check_events WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		q += clause + "$" + strconv.Itoa(n)
	}
	if f.Type != "" {
		add(` AND type=`, f.Type)
	}
	if f.From != nil {
		add(` AND timestamp >= `, *f.From)
	}
	if f.To != nil {
		add(` AND timestamp <= `, *f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 30
	}
	q += ` ORDER BY timestamp DESC`
	add(` LIMIT `, limit)
	add(` OFFSET `, f.Offset)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCheckEvents(rows)
}

func (r *CheckEventsRepoImpl) ListForPass(ctx context.Context, passID int64) ([]domain.CheckEvent, error) {
	const q = `SELECT ` + checkEventColumns + ` FROM check_events WHERE pass_id=$1 ORDER BY timestamp ASC, id ASC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, passID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCheckEvents(rows)
}

func collectCheckEvents(rows pgx.Rows) ([]domain.CheckEvent, error) {
	var out []domain.CheckEvent
	for rows.Next() {
		ev, err := scanCheckEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

var _ CheckEventsRepo = (*CheckEventsRepoImpl)(nil)
