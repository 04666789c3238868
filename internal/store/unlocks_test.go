package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tutorboard/pkg/types"
)

func TestUnlockContact_DebitsOnePoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUserWithCredits(t, s, "alice", types.UserTypeStudent, 3)
	seedUser(t, s, "bob", types.UserTypeTutor)

	unlock, created, err := s.UnlockContact(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "alice", unlock.UnlockerID)
	require.Equal(t, "bob", unlock.TargetID)

	balance, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, balance)
}

func TestUnlockContact_IdempotentWithoutCharge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUserWithCredits(t, s, "alice", types.UserTypeStudent, 3)
	seedUserWithCredits(t, s, "bob", types.UserTypeTutor, 3)

	_, created, err := s.UnlockContact(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, created)

	// Repeat from the same side.
	_, created, err = s.UnlockContact(ctx, "alice", "bob")
	require.NoError(t, err)
	require.False(t, created)

	// The other direction is already open too; no charge either.
	_, created, err = s.UnlockContact(ctx, "bob", "alice")
	require.NoError(t, err)
	require.False(t, created)

	aliceBalance, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, aliceBalance)
	bobBalance, err := s.Balance(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 3, bobBalance)
}

func TestUnlockContact_InsufficientLeavesNoRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice", types.UserTypeStudent)
	seedUser(t, s, "bob", types.UserTypeTutor)

	_, _, err := s.UnlockContact(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrInsufficientCredits)

	unlocked, err := s.IsContactUnlocked(ctx, "alice", "bob")
	require.NoError(t, err)
	require.False(t, unlocked)
}

func TestUnlockContact_SelfAndMissingTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUserWithCredits(t, s, "alice", types.UserTypeStudent, 1)

	_, _, err := s.UnlockContact(ctx, "alice", "alice")
	require.ErrorIs(t, err, ErrSelfUnlock)

	_, _, err = s.UnlockContact(ctx, "alice", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIsContactUnlocked_Symmetric(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUserWithCredits(t, s, "alice", types.UserTypeStudent, 1)
	seedUser(t, s, "bob", types.UserTypeTutor)

	unlocked, err := s.IsContactUnlocked(ctx, "alice", "bob")
	require.NoError(t, err)
	require.False(t, unlocked)

	_, _, err = s.UnlockContact(ctx, "alice", "bob")
	require.NoError(t, err)

	// A directional grant opens the channel both ways.
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		unlocked, err = s.IsContactUnlocked(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.True(t, unlocked)
	}
}

func TestBalanceAndAddCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice", types.UserTypeStudent)

	balance, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, balance)

	require.NoError(t, s.AddCredits(ctx, "alice", 5))
	balance, err = s.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 5, balance)

	require.Error(t, s.AddCredits(ctx, "alice", 0))

	_, err = s.Balance(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}
