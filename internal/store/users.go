package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"tutorboard/pkg/types"
)

// CreateUser inserts a user together with its zero-balance ledger row.
// Accounts are owned by an external service; this exists for seeding and
// for mirroring identities into the chat database.
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, username, user_type) VALUES (?, ?, ?)",
			user.ID, user.Username, user.UserType,
		); err != nil {
			return errors.Wrap(err, "failed to insert user")
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO credits (user_id, balance) VALUES (?, 0)",
			user.ID,
		); err != nil {
			return errors.Wrap(err, "failed to insert credit row")
		}
		return nil
	})
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, user_type FROM users WHERE id = ?", userID,
	).Scan(&user.ID, &user.Username, &user.UserType)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &user, nil
}

// SearchUsers returns up to limit users whose username contains keyword,
// excluding the searching user. An empty keyword matches nobody.
func (s *Store) SearchUsers(ctx context.Context, keyword, excludeID string, limit int) ([]*types.User, error) {
	if keyword == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, user_type
		FROM users
		WHERE username LIKE '%' || ? || '%' AND id != ?
		ORDER BY username
		LIMIT ?`,
		keyword, excludeID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search users")
	}
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(&user.ID, &user.Username, &user.UserType); err != nil {
			return nil, errors.Wrap(err, "failed to scan user row")
		}
		users = append(users, &user)
	}
	return users, errors.Wrap(rows.Err(), "error iterating user rows")
}
