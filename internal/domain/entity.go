package domain

import (
	"errors"
	"time"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates a uniqueness constraint rejected a write.
var ErrDuplicate = errors.New("duplicate")

// Entity is a rateable parent: a comment, folder or software entry.
// Title holds the folder or software name, or the comment body.
type Entity struct {
	Kind          Kind
	ID            string
	AuthorID      string
	Title         string
	AverageRating *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// User is the subset of the user record the rating subsystem needs.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}
