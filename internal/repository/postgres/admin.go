package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/pkg/database"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

const adminColumns = `id, name, email, password_hash, phone, role, is_active, last_login, created_at, updated_at`

const (
	insertAdmin = `
		INSERT INTO admins (` + adminColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectAdminByID = `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`

	selectAdminByEmail = `SELECT ` + adminColumns + ` FROM admins WHERE email = LOWER($1)`

	updateAdminPassword = `UPDATE admins SET password_hash = $1, updated_at = NOW() WHERE id = $2`

	updateAdminLastLogin = `UPDATE admins SET last_login = $1 WHERE id = $2`
)

// AdminRepository implements repository.AdminRepository using PostgreSQL.
type AdminRepository struct {
	db database.DBTX
}

// NewAdminRepository creates a new PostgreSQL-backed administrator repository.
func NewAdminRepository(db database.DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create inserts a new administrator. Emails are unique.
func (r *AdminRepository) Create(ctx context.Context, a *domain.Admin) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateAdmin", insertAdmin)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, insertAdmin,
		a.ID,
		a.Name,
		a.Email,
		a.PasswordHash,
		a.Phone,
		a.Role,
		a.IsActive,
		a.LastLogin,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("admin", "email", a.Email)
		}
		return fmt.Errorf("insert admin: %w", err)
	}

	return nil
}

// GetByID retrieves an administrator by identifier.
func (r *AdminRepository) GetByID(ctx context.Context, id string) (_ *domain.Admin, err error) {
	ctx, end := database.TraceQuery(ctx, "GetAdminByID", selectAdminByID)
	defer func() { end(err) }()

	return r.scanAdmin(ctx, selectAdminByID, id)
}

// GetByEmail retrieves an administrator by email, case-insensitively.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (_ *domain.Admin, err error) {
	ctx, end := database.TraceQuery(ctx, "GetAdminByEmail", selectAdminByEmail)
	defer func() { end(err) }()

	return r.scanAdmin(ctx, selectAdminByEmail, email)
}

// UpdatePassword replaces the stored password hash.
func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpdateAdminPassword", updateAdminPassword)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, updateAdminPassword, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("admin", id)
	}
	return nil
}

// UpdateLastLogin records the time of the latest successful login.
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpdateAdminLastLogin", updateAdminLastLogin)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, updateAdminLastLogin, at, id); err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	return nil
}

func (r *AdminRepository) scanAdmin(ctx context.Context, query string, arg string) (*domain.Admin, error) {
	var a domain.Admin
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.Phone,
		&a.Role,
		&a.IsActive,
		&a.LastLogin,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("admin", arg)
		}
		return nil, fmt.Errorf("scan admin: %w", err)
	}
	return &a, nil
}
