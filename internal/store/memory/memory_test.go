package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stark3693/stakepoll/internal/domain"
)

var (
	acct1 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	acct2 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestPollStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewPollStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	poll := domain.Poll{
		ID:          uuid.New(),
		Creator:     acct1,
		OptionCount: 2,
		Deadline:    now.Add(time.Hour),
		Status:      domain.PollStatusOpen,
		CreatedAt:   now,
	}
	require.NoError(t, s.Create(ctx, poll))
	assert.ErrorIs(t, s.Create(ctx, poll), domain.ErrAlreadyExists)

	_, err := s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Closing requires resolution first.
	assert.ErrorIs(t, s.MarkClosed(ctx, poll.ID), domain.ErrPollNotResolved)

	resolvedAt := now.Add(2 * time.Hour)
	require.NoError(t, s.MarkResolved(ctx, poll.ID, 1, resolvedAt, 500))
	assert.ErrorIs(t, s.MarkResolved(ctx, poll.ID, 0, resolvedAt, 500), domain.ErrAlreadyResolved)

	got, err := s.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PollStatusResolved, got.Status)
	require.NotNil(t, got.CorrectOption)
	assert.Equal(t, 1, *got.CorrectOption)
	assert.Equal(t, uint64(500), got.PoolAtResolution)

	require.NoError(t, s.MarkFeeClaimed(ctx, poll.ID))
	assert.ErrorIs(t, s.MarkFeeClaimed(ctx, poll.ID), domain.ErrAlreadyClaimed)

	require.NoError(t, s.MarkClosed(ctx, poll.ID))
	got, err = s.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PollStatusClosed, got.Status)
}

func TestPollStoreListResolvedBefore(t *testing.T) {
	ctx := context.Background()
	s := NewPollStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mk := func(resolvedAt *time.Time) uuid.UUID {
		id := uuid.New()
		require.NoError(t, s.Create(ctx, domain.Poll{ID: id, OptionCount: 2, Status: domain.PollStatusOpen, CreatedAt: now}))
		if resolvedAt != nil {
			require.NoError(t, s.MarkResolved(ctx, id, 0, *resolvedAt, 0))
		}
		return id
	}

	old := now.Add(-72 * time.Hour)
	recent := now.Add(-time.Hour)
	oldID := mk(&old)
	mk(&recent)
	mk(nil) // still open

	polls, err := s.ListResolvedBefore(ctx, now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Equal(t, oldID, polls[0].ID)
}

func TestStakeStoreRecordIncrementsExistingPosition(t *testing.T) {
	ctx := context.Background()
	s := NewStakeStore()
	pollID := uuid.New()
	now := time.Now().UTC()

	first, err := s.Record(ctx, domain.StakePosition{
		ID: uuid.New(), PollID: pollID, Account: acct1, Option: 0, Amount: 60, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	// Same (poll, account, option) tops up the existing position.
	second, err := s.Record(ctx, domain.StakePosition{
		ID: uuid.New(), PollID: pollID, Account: acct1, Option: 0, Amount: 25, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, uint64(85), second.Amount)

	// A different option is a new position.
	third, err := s.Record(ctx, domain.StakePosition{
		ID: uuid.New(), PollID: pollID, Account: acct1, Option: 1, Amount: 10, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	positions, err := s.PositionsFor(ctx, pollID, acct1)
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestStakeStoreAggregates(t *testing.T) {
	ctx := context.Background()
	s := NewStakeStore()
	pollID := uuid.New()
	now := time.Now().UTC()

	for _, p := range []struct {
		acct   common.Address
		option int
		amount uint64
	}{
		{acct1, 0, 60},
		{acct2, 0, 40},
		{acct2, 1, 50},
	} {
		_, err := s.Record(ctx, domain.StakePosition{
			ID: uuid.New(), PollID: pollID, Account: p.acct, Option: p.option, Amount: p.amount, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	total, err := s.TotalStaked(ctx, pollID)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), total)

	winning, err := s.StakedOnOption(ctx, pollID, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), winning)

	tally, err := s.Tally(ctx, pollID, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), tally.Total)
	assert.Equal(t, []uint64{100, 50}, tally.PerOption)
}

func TestStakeStoreMarkClaimedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStakeStore()
	now := time.Now().UTC()

	pos, err := s.Record(ctx, domain.StakePosition{
		ID: uuid.New(), PollID: uuid.New(), Account: acct1, Option: 0, Amount: 10, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkClaimed(ctx, pos.ID, now))
	assert.ErrorIs(t, s.MarkClaimed(ctx, pos.ID, now), domain.ErrAlreadyClaimed)

	got, err := s.Position(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, got.Claimed)
	require.NotNil(t, got.ClaimedAt)

	assert.ErrorIs(t, s.MarkClaimed(ctx, uuid.New(), now), domain.ErrNotFound)
}

func TestLedgerDebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	l.Mint(acct1, 100)
	assert.Equal(t, uint64(100), l.Balance(acct1))

	assert.ErrorIs(t, l.Debit(ctx, acct1, 101), domain.ErrInsufficientBalance)
	assert.Equal(t, uint64(100), l.Balance(acct1))

	require.NoError(t, l.Debit(ctx, acct1, 60))
	assert.Equal(t, uint64(40), l.Balance(acct1))

	require.NoError(t, l.Credit(ctx, acct2, 25))
	assert.Equal(t, uint64(25), l.Balance(acct2))
}

func TestAuditStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()

	require.NoError(t, s.Log(ctx, "poll.created", map[string]any{"n": 1}))
	require.NoError(t, s.Log(ctx, "poll.staked", map[string]any{"n": 2}))
	require.NoError(t, s.Log(ctx, "poll.resolved", map[string]any{"n": 3}))

	entries, err := s.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[1].CreatedAt.After(entries[0].CreatedAt))

	rest, err := s.List(ctx, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, rest)
}
