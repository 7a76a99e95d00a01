package usersrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/deskline/deskline-messenger/internal/users"
)

// Repo resolves users from the identity store's postgres schema. The desktop
// embedding does not carry a users table; it wires an in-memory repo instead.
type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetUser(ctx context.Context, id int64) (users.User, error) {
	const op = "users.repo.GetUser"

	var u users.User
	err := r.db.GetContext(ctx, &u, `SELECT id, name FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrUserNotFound
	}
	if err != nil {
		return users.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *Repo) GetUsers(ctx context.Context, ids []int64) ([]users.User, error) {
	const op = "users.repo.GetUsers"

	if len(ids) == 0 {
		return []users.User{}, nil
	}

	var result []users.User
	err := r.db.SelectContext(
		ctx,
		&result,
		`SELECT id, name FROM users WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(result) != len(uniqueIDs(ids)) {
		return nil, users.ErrUserNotFound
	}

	return result, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
