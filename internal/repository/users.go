package repository

import (
	"context"

	"github.com/one-folder-app/onefolder-api/internal/domain"
)

// UsersRepository reads user rows.
type UsersRepository struct {
	q querier
}

// GetByID fetches a user by identifier.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
        SELECT id::text, username, email, created_at
        FROM users
        WHERE id = $1
    `
	var user domain.User
	err := r.q.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}
