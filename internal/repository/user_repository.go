package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// UserRepo reads contact details from the users table. Accounts are
// managed elsewhere; this repository never writes.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetContact fetches the name, email and phone of a user by id.
func (r *UserRepo) GetContact(ctx context.Context, id uint64) (*model.Contact, error) {
	var c model.Contact
	var mobile sql.NullString
	var role string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,first_name,last_name,email,mobile,role FROM users WHERE id=? LIMIT 1",
		id).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &mobile, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Mobile = mobile.String
	c.Role = model.Role(role)
	return &c, nil
}
