package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/utils"
)

// UserRepo is the credential store: users, their verifiers and the business
// each one belongs to.  Queries use '?' placeholders understood by both the
// MySQL and SQLite drivers.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewAccount is the input for CreateAccount.  PasswordHash must already be
// a bcrypt hash.
type NewAccount struct {
	BusinessName string
	Email        string
	Name         string
	PasswordHash string
	Role         model.Role
}

const userColumns = "id,email,name,password_hash,role,business_id,is_active,created_at,updated_at"

// CreateAccount inserts a business and its first user in one transaction.
// When the user insert fails nothing is persisted.
func (r *UserRepo) CreateAccount(ctx context.Context, in NewAccount) (model.User, model.Business, error) {
	now := time.Now().UTC()
	biz := model.Business{
		ID:        utils.NewID(),
		Name:      strings.TrimSpace(in.BusinessName),
		CreatedAt: now,
	}
	u := model.User{
		ID:           utils.NewID(),
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		BusinessID:   biz.ID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO businesses (id, name, created_at) VALUES (?,?,?)",
			biz.ID, biz.Name, biz.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
			u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.BusinessID, u.IsActive, u.CreatedAt, u.UpdatedAt)
		if err != nil && isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	})
	if err != nil {
		return model.User{}, model.Business{}, err
	}
	return u, biz, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// SetActive enables or disables an account.  Tokens issued to a disabled
// account stop resolving to a user on the next request.  Account
// administration lives outside this service and calls it through the repo.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=?, updated_at=? WHERE id=?",
		active, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.BusinessID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isDuplicate recognizes unique-key violations from MySQL (1062) and SQLite.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
