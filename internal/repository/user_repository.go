package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/blueoxgroup/blueox-ride/internal/model"
	"github.com/blueoxgroup/blueox-ride/internal/utils"
)

// UserRepo provides data access to the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID. The phone is stored as
// canonical digits; callers normalize before passing it in.
func (r *UserRepo) Create(ctx context.Context, email, password, fullName, phone, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, phone, role) VALUES (?,?,?,?,?)",
		email, hash, fullName, phone, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,full_name,phone,role,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,full_name,phone,role,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// PhoneTx returns the stored mobile-money contact for a user inside an
// existing transaction. The refund resolver uses it to route a payout to
// the driver; an empty string means no contact is on file.
func (r *UserRepo) PhoneTx(ctx context.Context, tx *sql.Tx, id uint64) (string, error) {
	var phone string
	err := tx.QueryRowContext(ctx, "SELECT phone FROM users WHERE id=? LIMIT 1", id).Scan(&phone)
	return phone, err
}

// UpdatePhone replaces the stored mobile-money contact. The value must
// already be canonical.
func (r *UserRepo) UpdatePhone(ctx context.Context, id uint64, phone string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET phone=? WHERE id=?", phone, id)
	return err
}
