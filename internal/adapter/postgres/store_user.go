package postgres

import (
	"context"

	"github.com/Strob0t/LabCore/internal/domain/user"
)

const userColumns = `id, email, name, external_auth_id, created_at, updated_at`

func scanUser(row scannable) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.ExternalAuthID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, req user.RegisterRequest) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (email, name, external_auth_id) VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		req.Email, req.Name, req.ExternalAuthID))
	if err != nil {
		return nil, notFoundWrap(err, "create user %s", req.Email)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, notFoundWrap(err, "get user by email")
	}
	return &u, nil
}

func (s *Store) GetUserByExternalAuthID(ctx context.Context, externalID string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_auth_id = $1 AND external_auth_id <> ''`, externalID))
	if err != nil {
		return nil, notFoundWrap(err, "get user by external auth id")
	}
	return &u, nil
}
