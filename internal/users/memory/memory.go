package usersmemory

import (
	"context"

	"github.com/deskline/deskline-messenger/internal/users"
)

// Repo is an in-memory identity store used by the desktop embedding, which
// receives its user roster from the host application, and by tests.
type Repo struct {
	byID map[int64]users.User
}

func New(seed ...users.User) *Repo {
	byID := make(map[int64]users.User, len(seed))
	for _, u := range seed {
		byID[u.ID] = u
	}
	return &Repo{byID: byID}
}

func (r *Repo) GetUser(ctx context.Context, id int64) (users.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (r *Repo) GetUsers(ctx context.Context, ids []int64) ([]users.User, error) {
	result := make([]users.User, 0, len(ids))
	seen := make(map[int64]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		u, ok := r.byID[id]
		if !ok {
			return nil, users.ErrUserNotFound
		}
		result = append(result, u)
	}

	return result, nil
}
