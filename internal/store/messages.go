package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tutorboard/pkg/types"
)

// AppendMessage persists a message and, in the same transaction, creates one
// 'sent' read-state per participant other than the sender. The stored
// timestamp is clamped to the conversation's newest message so ordering by
// (timestamp, id) always matches insertion order.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID, content string, attachment *string, isSystem bool) (*types.Message, error) {
	msg := &types.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachment:     attachment,
		IsSystem:       isSystem,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sender, err := participantName(ctx, tx, conversationID, senderID)
		if err != nil {
			return err
		}
		msg.SenderUsername = sender

		ts := time.Now().UTC()
		var latest time.Time
		err = tx.QueryRowContext(ctx, `
			SELECT timestamp FROM messages
			WHERE conversation_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1`,
			conversationID,
		).Scan(&latest)
		if err != nil && err != sql.ErrNoRows {
			return errors.Wrap(err, "failed to query latest timestamp")
		}
		if err == nil && ts.Before(latest) {
			ts = latest
		}
		msg.Timestamp = ts

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, timestamp, is_system, attachment)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Timestamp, msg.IsSystem, msg.Attachment,
		); err != nil {
			return errors.Wrap(err, "failed to insert message")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_reads (message_id, user_id, status)
			SELECT ?, user_id, 'sent'
			FROM conversation_participants
			WHERE conversation_id = ? AND user_id != ?`,
			msg.ID, conversationID, senderID,
		); err != nil {
			return errors.Wrap(err, "failed to insert read states")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// participantName verifies membership and returns the participant's
// username. Distinguishes a missing conversation from a non-member.
func participantName(ctx context.Context, q querier, conversationID, userID string) (string, error) {
	var username string
	err := q.QueryRowContext(ctx, `
		SELECT u.username
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = ? AND p.user_id = ?`,
		conversationID, userID,
	).Scan(&username)
	if err == sql.ErrNoRows {
		var n int
		if err := q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM conversations WHERE id = ?", conversationID,
		).Scan(&n); err != nil {
			return "", errors.Wrap(err, "failed to check conversation")
		}
		if n == 0 {
			return "", ErrNotFound
		}
		return "", ErrNotParticipant
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to query participant")
	}
	return username, nil
}

// GetMessage retrieves a single message with its sender's username.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	return getMessage(ctx, s.db, messageID)
}

func getMessage(ctx context.Context, q querier, messageID string) (*types.Message, error) {
	var msg types.Message
	err := q.QueryRowContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.timestamp, m.is_system, m.attachment
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?`,
		messageID,
	).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderUsername,
		&msg.Content, &msg.Timestamp, &msg.IsSystem, &msg.Attachment)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query message")
	}
	return &msg, nil
}

// ListMessages returns the conversation's messages in chronological order,
// ties broken by id.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.timestamp, m.is_system, m.attachment
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.timestamp ASC, m.id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderUsername,
			&msg.Content, &msg.Timestamp, &msg.IsSystem, &msg.Attachment); err != nil {
			return nil, errors.Wrap(err, "failed to scan message row")
		}
		messages = append(messages, &msg)
	}
	return messages, errors.Wrap(rows.Err(), "error iterating message rows")
}

func (s *Store) latestMessage(ctx context.Context, conversationID string) (*types.Message, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`,
		conversationID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest message")
	}
	return s.GetMessage(ctx, id)
}

// MarkSeen transitions all of the reader's non-seen read-states in the
// conversation to 'seen', stamps read_at, and advances the reader's
// last-read pointer to the newest message. Returns only the message ids
// that actually changed, so a repeat call returns an empty slice.
func (s *Store) MarkSeen(ctx context.Context, conversationID, readerID string) ([]string, error) {
	var newlySeen []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := participantName(ctx, tx, conversationID, readerID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT mr.message_id
			FROM message_reads mr
			JOIN messages m ON m.id = mr.message_id
			WHERE mr.user_id = ? AND m.conversation_id = ? AND mr.status != 'seen'
			ORDER BY m.timestamp ASC, m.id ASC`,
			readerID, conversationID,
		)
		if err != nil {
			return errors.Wrap(err, "failed to query unseen read states")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return errors.Wrap(err, "failed to scan read state row")
			}
			newlySeen = append(newlySeen, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "error iterating read state rows")
		}
		_ = rows.Close()

		if len(newlySeen) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE message_reads
				SET status = 'seen', read_at = ?
				WHERE user_id = ? AND status != 'seen'
				AND message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`,
				time.Now().UTC(), readerID, conversationID,
			); err != nil {
				return errors.Wrap(err, "failed to update read states")
			}
		}

		var latestID string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM messages
			WHERE conversation_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1`,
			conversationID,
		).Scan(&latestID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to query latest message")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversation_participants
			SET last_read_message_id = ?
			WHERE conversation_id = ? AND user_id = ?`,
			latestID, conversationID, readerID,
		)
		return errors.Wrap(err, "failed to advance last-read pointer")
	})
	if err != nil {
		return nil, err
	}
	return newlySeen, nil
}

// MarkDelivered transitions a recipient's read-state from 'sent' to
// 'delivered'. Any other current status, or a missing row, is a no-op:
// the state machine never regresses.
func (s *Store) MarkDelivered(ctx context.Context, messageID, recipientID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE message_reads
			SET status = 'delivered'
			WHERE message_id = ? AND user_id = ? AND status = 'sent'`,
			messageID, recipientID,
		)
		return errors.Wrap(err, "failed to mark delivered")
	})
}

// ReadStateFor returns the read-state row for one (message, recipient) pair.
func (s *Store) ReadStateFor(ctx context.Context, messageID, userID string) (*types.ReadState, error) {
	state := &types.ReadState{MessageID: messageID, UserID: userID}
	err := s.db.QueryRowContext(ctx,
		"SELECT status, read_at FROM message_reads WHERE message_id = ? AND user_id = ?",
		messageID, userID,
	).Scan(&state.Status, &state.ReadAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query read state")
	}
	return state, nil
}
