// Package memory implements the domain store and ledger interfaces with
// in-process maps. It backs the engine's test suite and the dev mode where no
// PostgreSQL instance is available.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/domain"
)

// PollStore implements domain.PollStore over a map.
type PollStore struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]domain.Poll
}

// NewPollStore creates an empty PollStore.
func NewPollStore() *PollStore {
	return &PollStore{polls: make(map[uuid.UUID]domain.Poll)}
}

func (s *PollStore) Create(ctx context.Context, poll domain.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[poll.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.polls[poll.ID] = poll
	return nil
}

func (s *PollStore) Get(ctx context.Context, id uuid.UUID) (domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[id]
	if !ok {
		return domain.Poll{}, domain.ErrNotFound
	}
	return poll, nil
}

func (s *PollStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Poll, error) {
	s.mu.RLock()
	polls := make([]domain.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		polls = append(polls, p)
	}
	s.mu.RUnlock()

	sort.Slice(polls, func(i, j int) bool {
		return polls[i].CreatedAt.After(polls[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(polls) {
			return nil, nil
		}
		polls = polls[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(polls) {
		polls = polls[:opts.Limit]
	}
	return polls, nil
}

func (s *PollStore) ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Poll
	for _, p := range s.polls {
		if p.Status == domain.PollStatusResolved && p.ResolvedAt != nil && p.ResolvedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *PollStore) MarkResolved(ctx context.Context, id uuid.UUID, correctOption int, resolvedAt time.Time, pool uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[id]
	if !ok {
		return domain.ErrNotFound
	}
	if poll.Status != domain.PollStatusOpen {
		return domain.ErrAlreadyResolved
	}
	poll.Status = domain.PollStatusResolved
	poll.CorrectOption = &correctOption
	poll.ResolvedAt = &resolvedAt
	poll.PoolAtResolution = pool
	s.polls[id] = poll
	return nil
}

func (s *PollStore) MarkFeeClaimed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[id]
	if !ok {
		return domain.ErrNotFound
	}
	if poll.CreatorFeeClaimed {
		return domain.ErrAlreadyClaimed
	}
	poll.CreatorFeeClaimed = true
	s.polls[id] = poll
	return nil
}

func (s *PollStore) MarkClosed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[id]
	if !ok {
		return domain.ErrNotFound
	}
	if poll.Status != domain.PollStatusResolved {
		return domain.ErrPollNotResolved
	}
	poll.Status = domain.PollStatusClosed
	s.polls[id] = poll
	return nil
}

// posKey identifies one position per (poll, account, option).
type posKey struct {
	poll    uuid.UUID
	account common.Address
	option  int
}

// StakeStore implements domain.StakeStore over maps with a (poll, account,
// option) index for increment-on-repeat-stake semantics.
type StakeStore struct {
	mu        sync.RWMutex
	positions map[uuid.UUID]domain.StakePosition
	byKey     map[posKey]uuid.UUID
	byPoll    map[uuid.UUID][]uuid.UUID
}

// NewStakeStore creates an empty StakeStore.
func NewStakeStore() *StakeStore {
	return &StakeStore{
		positions: make(map[uuid.UUID]domain.StakePosition),
		byKey:     make(map[posKey]uuid.UUID),
		byPoll:    make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *StakeStore) Record(ctx context.Context, pos domain.StakePosition) (domain.StakePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := posKey{poll: pos.PollID, account: pos.Account, option: pos.Option}
	if id, ok := s.byKey[key]; ok {
		existing := s.positions[id]
		existing.Amount += pos.Amount
		existing.UpdatedAt = pos.UpdatedAt
		s.positions[id] = existing
		return existing, nil
	}

	s.positions[pos.ID] = pos
	s.byKey[key] = pos.ID
	s.byPoll[pos.PollID] = append(s.byPoll[pos.PollID], pos.ID)
	return pos, nil
}

func (s *StakeStore) Position(ctx context.Context, id uuid.UUID) (domain.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	if !ok {
		return domain.StakePosition{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *StakeStore) PositionsFor(ctx context.Context, pollID uuid.UUID, account common.Address) ([]domain.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StakePosition
	for _, id := range s.byPoll[pollID] {
		if pos := s.positions[id]; pos.Account == account {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (s *StakeStore) PositionsForPoll(ctx context.Context, pollID uuid.UUID) ([]domain.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StakePosition, 0, len(s.byPoll[pollID]))
	for _, id := range s.byPoll[pollID] {
		out = append(out, s.positions[id])
	}
	return out, nil
}

func (s *StakeStore) TotalStaked(ctx context.Context, pollID uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, id := range s.byPoll[pollID] {
		total += s.positions[id].Amount
	}
	return total, nil
}

func (s *StakeStore) StakedOnOption(ctx context.Context, pollID uuid.UUID, option int) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, id := range s.byPoll[pollID] {
		if pos := s.positions[id]; pos.Option == option {
			total += pos.Amount
		}
	}
	return total, nil
}

func (s *StakeStore) Tally(ctx context.Context, pollID uuid.UUID, optionCount int) (domain.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := domain.Tally{
		PollID:    pollID,
		PerOption: make([]uint64, optionCount),
	}
	for _, id := range s.byPoll[pollID] {
		pos := s.positions[id]
		if pos.Option < optionCount {
			t.PerOption[pos.Option] += pos.Amount
		}
		t.Total += pos.Amount
	}
	return t, nil
}

func (s *StakeStore) MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if pos.Claimed {
		return domain.ErrAlreadyClaimed
	}
	pos.Claimed = true
	pos.ClaimedAt = &at
	s.positions[id] = pos
	return nil
}

// Ledger implements domain.Ledger with an in-process balance map. Mint seeds
// balances; the engine itself never mints.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]uint64
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]uint64)}
}

// Mint adds amount to the account's balance.
func (l *Ledger) Mint(account common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance returns the account's current balance.
func (l *Ledger) Balance(account common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (l *Ledger) Debit(ctx context.Context, account common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] < amount {
		return domain.ErrInsufficientBalance
	}
	l.balances[account] -= amount
	return nil
}

func (l *Ledger) Credit(ctx context.Context, account common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
	return nil
}

// AuditStore implements domain.AuditStore with an in-process slice.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	nextID  int64
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.AuditEntry, len(s.entries))
	copy(entries, s.entries)

	// Newest first, matching the SQL store.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// Compile-time interface checks.
var (
	_ domain.PollStore  = (*PollStore)(nil)
	_ domain.StakeStore = (*StakeStore)(nil)
	_ domain.Ledger     = (*Ledger)(nil)
	_ domain.AuditStore = (*AuditStore)(nil)
)
