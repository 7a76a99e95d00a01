package users

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("user not found")

// User is owned by the identity store; the messaging core only reads it.
type User struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Repo is the boundary to the identity store: batched id -> display-name
// resolution. Callers are expected to collect ids and call GetUsers once
// per operation, never per chat or per message.
type Repo interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUsers(ctx context.Context, ids []int64) ([]User, error)
}
