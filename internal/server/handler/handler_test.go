package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stark3693/stakepoll/internal/domain"
	"github.com/stark3693/stakepoll/internal/engine"
	"github.com/stark3693/stakepoll/internal/server/middleware"
)

var caller = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubPolls implements PollService with canned results.
type stubPolls struct {
	poll       domain.Poll
	tally      domain.Tally
	err        error
	resolvedBy common.Address
}

func (s *stubPolls) CreatePoll(ctx context.Context, params engine.CreatePollParams) (domain.Poll, error) {
	return s.poll, s.err
}

func (s *stubPolls) Poll(ctx context.Context, id uuid.UUID) (domain.Poll, error) {
	return s.poll, s.err
}

func (s *stubPolls) Polls(ctx context.Context, opts domain.ListOpts) ([]domain.Poll, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Poll{s.poll}, nil
}

func (s *stubPolls) Tally(ctx context.Context, pollID uuid.UUID) (domain.Tally, error) {
	return s.tally, s.err
}

func (s *stubPolls) Resolve(ctx context.Context, pollID uuid.UUID, correctOption int, by common.Address) (domain.Poll, error) {
	s.resolvedBy = by
	return s.poll, s.err
}

func samplePoll() domain.Poll {
	return domain.Poll{
		ID:             uuid.New(),
		Creator:        caller,
		OptionCount:    2,
		Deadline:       time.Now().Add(time.Hour).UTC(),
		StakingEnabled: true,
		Status:         domain.PollStatusOpen,
		CreatedAt:      time.Now().UTC(),
	}
}

// newRequest builds a request with an optional authenticated caller and the
// {id} path value set.
func newRequest(method, target string, body any, addr *common.Address, pathID string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	if addr != nil {
		r = r.WithContext(middleware.WithCaller(r.Context(), *addr))
	}
	if pathID != "" {
		r.SetPathValue("id", pathID)
	}
	return r
}

func TestCreatePollRequiresCaller(t *testing.T) {
	h := NewPollHandler(&stubPolls{}, testLogger())
	w := httptest.NewRecorder()

	h.CreatePoll(w, newRequest(http.MethodPost, "/api/polls", map[string]any{"option_count": 2}, nil, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePoll(t *testing.T) {
	stub := &stubPolls{poll: samplePoll()}
	h := NewPollHandler(stub, testLogger())
	w := httptest.NewRecorder()

	body := map[string]any{
		"option_count": 2,
		"deadline":     time.Now().Add(time.Hour).Format(time.RFC3339),
	}
	h.CreatePoll(w, newRequest(http.MethodPost, "/api/polls", body, &caller, ""))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, stub.poll.ID.String(), resp["id"])
	assert.Equal(t, caller.Hex(), resp["creator"])
}

func TestDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrInvalidOptionCount, http.StatusBadRequest},
		{"access control", domain.ErrNotCreator, http.StatusForbidden},
		{"timing", domain.ErrClaimTooEarly, http.StatusConflict},
		{"state", domain.ErrAlreadyResolved, http.StatusConflict},
		{"external ledger", domain.ErrInsufficientBalance, http.StatusPaymentRequired},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPollHandler(&stubPolls{err: tt.err}, testLogger())
			w := httptest.NewRecorder()

			h.ResolvePoll(w, newRequest(http.MethodPost, "/api/polls/x/resolve",
				map[string]any{"correct_option": 0}, &caller, uuid.NewString()))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetPollMalformedID(t *testing.T) {
	h := NewPollHandler(&stubPolls{}, testLogger())
	w := httptest.NewRecorder()

	h.GetPoll(w, newRequest(http.MethodGet, "/api/polls/not-a-uuid", nil, nil, "not-a-uuid"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolvePassesCaller(t *testing.T) {
	stub := &stubPolls{poll: samplePoll()}
	h := NewPollHandler(stub, testLogger())
	w := httptest.NewRecorder()

	h.ResolvePoll(w, newRequest(http.MethodPost, "/api/polls/x/resolve",
		map[string]any{"correct_option": 1}, &caller, stub.poll.ID.String()))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, caller, stub.resolvedBy)
}

// stubStakes implements StakeService.
type stubStakes struct {
	pos domain.StakePosition
	err error
}

func (s *stubStakes) Stake(ctx context.Context, pollID uuid.UUID, account common.Address, option int, amount uint64) (domain.StakePosition, error) {
	return s.pos, s.err
}

func (s *stubStakes) Positions(ctx context.Context, pollID uuid.UUID, account common.Address) ([]domain.StakePosition, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.StakePosition{s.pos}, nil
}

func TestPlaceStake(t *testing.T) {
	pos := domain.StakePosition{
		ID:      uuid.New(),
		PollID:  uuid.New(),
		Account: caller,
		Option:  1,
		Amount:  50,
	}
	h := NewStakeHandler(&stubStakes{pos: pos}, testLogger())
	w := httptest.NewRecorder()

	h.PlaceStake(w, newRequest(http.MethodPost, "/api/polls/x/stake",
		map[string]any{"option": 1, "amount": 50}, &caller, pos.PollID.String()))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pos.ID.String(), resp["id"])
	assert.Equal(t, float64(50), resp["amount"])
}

func TestPlaceStakeInsufficientBalance(t *testing.T) {
	h := NewStakeHandler(&stubStakes{err: domain.ErrInsufficientBalance}, testLogger())
	w := httptest.NewRecorder()

	h.PlaceStake(w, newRequest(http.MethodPost, "/api/polls/x/stake",
		map[string]any{"option": 0, "amount": 10}, &caller, uuid.NewString()))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestListPositionsRequiresAccount(t *testing.T) {
	h := NewStakeHandler(&stubStakes{}, testLogger())

	// Neither authenticated caller nor ?account=.
	w := httptest.NewRecorder()
	h.ListPositions(w, newRequest(http.MethodGet, "/api/polls/x/positions", nil, nil, uuid.NewString()))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Explicit account works without authentication.
	w = httptest.NewRecorder()
	h.ListPositions(w, newRequest(http.MethodGet,
		"/api/polls/x/positions?account="+caller.Hex(), nil, nil, uuid.NewString()))
	assert.Equal(t, http.StatusOK, w.Code)
}

// stubClaims implements ClaimService.
type stubClaims struct {
	amount uint64
	err    error
}

func (s *stubClaims) ClaimCreatorFee(ctx context.Context, pollID uuid.UUID, caller common.Address) (uint64, error) {
	return s.amount, s.err
}

func (s *stubClaims) ClaimReward(ctx context.Context, pollID, positionID uuid.UUID, caller common.Address) (uint64, error) {
	return s.amount, s.err
}

func TestClaimCreatorFee(t *testing.T) {
	h := NewClaimHandler(&stubClaims{amount: 7}, testLogger())
	w := httptest.NewRecorder()

	h.ClaimCreatorFee(w, newRequest(http.MethodPost, "/api/polls/x/claim/fee", nil, &caller, uuid.NewString()))

	require.Equal(t, http.StatusOK, w.Code)
	var resp claimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(7), resp.Amount)
}

func TestClaimRewardDoubleClaimConflict(t *testing.T) {
	h := NewClaimHandler(&stubClaims{err: domain.ErrAlreadyClaimed}, testLogger())
	w := httptest.NewRecorder()

	h.ClaimReward(w, newRequest(http.MethodPost, "/api/polls/x/claim/reward",
		map[string]any{"position_id": uuid.NewString()}, &caller, uuid.NewString()))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestClaimRewardMalformedPositionID(t *testing.T) {
	h := NewClaimHandler(&stubClaims{}, testLogger())
	w := httptest.NewRecorder()

	h.ClaimReward(w, newRequest(http.MethodPost, "/api/polls/x/claim/reward",
		map[string]any{"position_id": "nope"}, &caller, uuid.NewString()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
