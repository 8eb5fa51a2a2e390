package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Virang41/visiting/internal/domain"
)

const userColumns = `id, role, email, password_hash, name, phone, department, is_active,
	last_login_at, otp_hash, otp_expires_at, otp_purpose, created_at, updated_at`

type UsersRepo interface {
	Create(ctx context.Context, email, hash, name, phone, department, role string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, name, phone, department string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error

	// SetChallenge writes the OTP challenge in one UPDATE; any prior challenge
	// on the row is overwritten in the same write, so at most one is ever live.
	SetChallenge(ctx context.Context, id int64, codeHash string, expiresAt time.Time, purpose domain.OTPPurpose) error
	// ConsumeChallenge clears the challenge fields, and for the login flow
	// touches last_login_at in the same statement. It is keyed on the digest
	// that was verified, so a raced second verify or a reissue that landed
	// after the read affects zero rows.
	ConsumeChallenge(ctx context.Context, id int64, codeHash string, loginAt *time.Time) error
	// ClearChallenge drops an expired challenge without consuming it.
	ClearChallenge(ctx context.Context, id int64) error
}

type UsersRepoImpl struct{ pool *pgxpool.Pool }

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepoImpl { return &UsersRepoImpl{pool: pool} }

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		otpHash *string
		purpose *string
	)
	if err := row.Scan(
		&u.ID, &u.Role, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Department, &u.IsActive,
		&u.LastLoginAt, &otpHash, &u.OTPExpiresAt, &purpose, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if otpHash != nil {
		u.OTPHash = *otpHash
	}
	if purpose != nil {
		u.OTPPurpose = domain.OTPPurpose(*purpose)
	}
	return &u, nil
}

func (r *UsersRepoImpl) Create(ctx context.Context, email, hash, name, phone, department, role string) (*domain.User, error) {
	const q = `
INSERT INTO users (email, password_hash, name, phone, department, role)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + userColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, email, hash, name, phone, department, role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

func (r *UsersRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *UsersRepoImpl) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *UsersRepoImpl) UpdateProfile(ctx context.Context, id int64, name, phone, department string) (*domain.User, error) {
	const q = `
UPDATE users
SET name = COALESCE(NULLIF($2,''), name),
    phone = COALESCE(NULLIF($3,''), phone),
    department = COALESCE(NULLIF($4,''), department),
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, id, name, phone, department))
}

func (r *UsersRepoImpl) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UsersRepoImpl) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET last_login_at=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

func (r *UsersRepoImpl) SetChallenge(ctx context.Context, id int64, codeHash string, expiresAt time.Time, purpose domain.OTPPurpose) error {
	const q = `
UPDATE users
SET otp_hash=$2, otp_expires_at=$3, otp_purpose=$4, updated_at=now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, codeHash, expiresAt, string(purpose))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UsersRepoImpl) ConsumeChallenge(ctx context.Context, id int64, codeHash string, loginAt *time.Time) error {
	const q = `
UPDATE users
SET otp_hash=NULL, otp_expires_at=NULL, otp_purpose=NULL,
    last_login_at=COALESCE($3, last_login_at), updated_at=now()
WHERE id=$1 AND otp_hash=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, codeHash, loginAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// already consumed or superseded
		return domain.ErrNotFound
	}
	return nil
}

func (r *UsersRepoImpl) ClearChallenge(ctx context.Context, id int64) error {
	const q = `
UPDATE users
SET otp_hash=NULL, otp_expires_at=NULL, otp_purpose=NULL, updated_at=now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

var _ UsersRepo = (*UsersRepoImpl)(nil)
