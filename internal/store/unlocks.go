package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"tutorboard/pkg/types"
)

const contactUnlockCost = 1

// IsContactUnlocked reports whether messaging is open between the two users.
// A grant in either direction opens the channel both ways.
func (s *Store) IsContactUnlocked(ctx context.Context, userA, userB string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contact_unlocks
		WHERE (unlocker_id = ? AND target_id = ?) OR (unlocker_id = ? AND target_id = ?)`,
		userA, userB, userB, userA,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to query contact unlock")
	}
	return n > 0, nil
}

// UnlockContact grants unlockerID access to message targetID, debiting one
// point. The debit and the grant commit together or not at all. When the
// channel is already open in either direction the call is idempotent:
// created is false and no point is charged.
func (s *Store) UnlockContact(ctx context.Context, unlockerID, targetID string) (*types.ContactUnlock, bool, error) {
	if unlockerID == targetID {
		return nil, false, ErrSelfUnlock
	}

	var unlock *types.ContactUnlock
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getUserIn(ctx, tx, targetID); err != nil {
			return err
		}

		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM contact_unlocks
			WHERE (unlocker_id = ? AND target_id = ?) OR (unlocker_id = ? AND target_id = ?)`,
			unlockerID, targetID, targetID, unlockerID,
		).Scan(&n)
		if err != nil {
			return errors.Wrap(err, "failed to query contact unlock")
		}
		if n > 0 {
			unlock, err = getContactUnlock(ctx, tx, unlockerID, targetID)
			if err == ErrNotFound {
				// Open in the other direction only.
				unlock, err = getContactUnlock(ctx, tx, targetID, unlockerID)
			}
			return err
		}

		if err := debit(ctx, tx, unlockerID, contactUnlockCost); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO contact_unlocks (unlocker_id, target_id, created_at) VALUES (?, ?, ?)",
			unlockerID, targetID, now,
		); err != nil {
			return errors.Wrap(err, "failed to insert contact unlock")
		}

		unlock = &types.ContactUnlock{UnlockerID: unlockerID, TargetID: targetID, CreatedAt: now}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return unlock, created, nil
}

func getContactUnlock(ctx context.Context, q querier, unlockerID, targetID string) (*types.ContactUnlock, error) {
	unlock := &types.ContactUnlock{UnlockerID: unlockerID, TargetID: targetID}
	err := q.QueryRowContext(ctx,
		"SELECT created_at FROM contact_unlocks WHERE unlocker_id = ? AND target_id = ?",
		unlockerID, targetID,
	).Scan(&unlock.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query contact unlock")
	}
	return unlock, nil
}

func getUserIn(ctx context.Context, q querier, userID string) (*types.User, error) {
	var user types.User
	err := q.QueryRowContext(ctx,
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

// debit subtracts amount from the user's balance. The conditional UPDATE is
// the balance invariant: it matches zero rows when funds are short, so the
// balance can never go negative even under concurrent spends.
func debit(ctx context.Context, tx *sql.Tx, userID string, amount int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE credits SET balance = balance - ? WHERE user_id = ? AND balance >= ?",
		amount, userID, amount,
	)
	if err != nil {
		return errors.Wrap(err, "failed to debit points")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read debit result")
	}
	if affected == 0 {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM credits WHERE user_id = ?", userID,
		).Scan(&n); err != nil {
			return errors.Wrap(err, "failed to check credit row")
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrInsufficientCredits
	}
	return nil
}

// Balance returns the user's current point balance.
func (s *Store) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		"SELECT balance FROM credits WHERE user_id = ?", userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to query balance")
	}
	return balance, nil
}

// AddCredits grants points to the user, creating the ledger row if needed.
func (s *Store) AddCredits(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return errors.New("credit amount must be positive")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credits (user_id, balance) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance`,
			userID, amount,
		)
		return errors.Wrap(err, "failed to add credits")
	})
}
