package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tutorboard/pkg/types"
)

// orderPair returns the two user ids in lexical order, the canonical key of
// a two-party conversation.
func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// FindOrCreateConversation returns the conversation between the two users,
// creating it with both participant rows when none exists. Concurrent calls
// for the same pair are serialized by the unique (user_lo, user_hi) index:
// exactly one row is ever created and every caller observes it.
func (s *Store) FindOrCreateConversation(ctx context.Context, userA, userB string) (*types.Conversation, error) {
	if userA == userB {
		return nil, ErrSelfConversation
	}
	lo, hi := orderPair(userA, userB)

	var conv *types.Conversation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := findConversationID(ctx, tx, lo, hi)
		if err == nil {
			conv, err = loadConversation(ctx, tx, id)
			return err
		}
		if err != sql.ErrNoRows {
			return errors.Wrap(err, "failed to query conversation")
		}

		id = uuid.New().String()
		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO conversations (id, user_lo, user_hi, created_at) VALUES (?, ?, ?, ?)",
			id, lo, hi, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// Lost the race, the winner's row is visible now.
				id, err = findConversationID(ctx, tx, lo, hi)
				if err != nil {
					return errors.Wrap(err, "failed to re-query conversation after conflict")
				}
				conv, err = loadConversation(ctx, tx, id)
				return err
			}
			return errors.Wrap(err, "failed to insert conversation")
		}

		for _, userID := range []string{lo, hi} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)",
				id, userID, now,
			); err != nil {
				return errors.Wrap(err, "failed to insert participant")
			}
		}

		conv, err = loadConversation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation with its participants.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error) {
	return loadConversation(ctx, s.db, conversationID)
}

func findConversationID(ctx context.Context, q querier, lo, hi string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		"SELECT id FROM conversations WHERE user_lo = ? AND user_hi = ?", lo, hi,
	).Scan(&id)
	return id, err
}

func loadConversation(ctx context.Context, q querier, conversationID string) (*types.Conversation, error) {
	conv := &types.Conversation{ID: conversationID}
	err := q.QueryRowContext(ctx,
		"SELECT created_at FROM conversations WHERE id = ?", conversationID,
	).Scan(&conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversation")
	}

	rows, err := q.QueryContext(ctx, `
		SELECT p.user_id, u.username, p.joined_at, p.last_read_message_id
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = ?
		ORDER BY p.user_id`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query participants")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		p := types.Participant{ConversationID: conversationID}
		if err := rows.Scan(&p.UserID, &p.Username, &p.JoinedAt, &p.LastReadMessageID); err != nil {
			return nil, errors.Wrap(err, "failed to scan participant row")
		}
		conv.Participants = append(conv.Participants, p)
	}
	return conv, errors.Wrap(rows.Err(), "error iterating participant rows")
}

// OtherParticipantIDs returns every participant of the conversation except
// excludeID.
func (s *Store) OtherParticipantIDs(ctx context.Context, conversationID, excludeID string) ([]string, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var others []string
	for _, p := range conv.Participants {
		if p.UserID != excludeID {
			others = append(others, p.UserID)
		}
	}
	return others, nil
}

// ListConversations returns the user's conversation summaries, newest
// activity first. HasUnread follows the last-read pointer: true iff the
// latest message is from someone else and newer than the pointer target.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*types.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, p.last_read_message_id
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	defer func() { _ = rows.Close() }()

	type convRow struct {
		id       string
		lastRead *string
	}
	var convRows []convRow
	for rows.Next() {
		var r convRow
		if err := rows.Scan(&r.id, &r.lastRead); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		convRows = append(convRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating conversation rows")
	}

	summaries := make([]*types.ConversationSummary, 0, len(convRows))
	lastTimestamps := make(map[string]time.Time)
	for _, r := range convRows {
		conv, err := s.GetConversation(ctx, r.id)
		if err != nil {
			return nil, err
		}

		summary := &types.ConversationSummary{ID: r.id, LastMessage: &types.LastMessage{}}
		for _, p := range conv.Participants {
			summary.Participants = append(summary.Participants, types.WireUser{ID: p.UserID, Username: p.Username})
		}

		lastMsg, err := s.latestMessage(ctx, r.id)
		if err != nil && err != ErrNotFound {
			return nil, err
		}
		if lastMsg != nil {
			summary.LastMessage = &types.LastMessage{
				Content:        lastMsg.Content,
				Timestamp:      &lastMsg.Timestamp,
				SenderID:       &lastMsg.SenderID,
				SenderUsername: &lastMsg.SenderUsername,
			}
			lastTimestamps[r.id] = lastMsg.Timestamp

			if lastMsg.SenderID != userID {
				if r.lastRead == nil {
					summary.HasUnread = true
				} else {
					lastReadMsg, err := s.GetMessage(ctx, *r.lastRead)
					if err != nil && err != ErrNotFound {
						return nil, err
					}
					if lastReadMsg == nil || lastMsg.NewerThan(lastReadMsg) {
						summary.HasUnread = true
					}
				}
			}
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return lastTimestamps[summaries[i].ID].After(lastTimestamps[summaries[j].ID])
	})
	return summaries, nil
}
