package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/server/middleware"

	"github.com/stark3693/stakepoll/internal/domain"
)

// StakeService defines the engine methods the stake handler requires.
type StakeService interface {
	Stake(ctx context.Context, pollID uuid.UUID, account common.Address, option int, amount uint64) (domain.StakePosition, error)
	Positions(ctx context.Context, pollID uuid.UUID, account common.Address) ([]domain.StakePosition, error)
}

// StakeHandler serves stake placement and position queries.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler with the given service and logger.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes: stakes,
		logger: logger,
	}
}

// positionResponse is the JSON shape of a stake position.
type positionResponse struct {
	ID        string     `json:"id"`
	PollID    string     `json:"poll_id"`
	Account   string     `json:"account"`
	Option    int        `json:"option"`
	Amount    uint64     `json:"amount"`
	Claimed   bool       `json:"claimed"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toPositionResponse(p domain.StakePosition) positionResponse {
	return positionResponse{
		ID:        p.ID.String(),
		PollID:    p.PollID.String(),
		Account:   p.Account.Hex(),
		Option:    p.Option,
		Amount:    p.Amount,
		Claimed:   p.Claimed,
		ClaimedAt: p.ClaimedAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// stakeRequest is the JSON body for stake placement.
type stakeRequest struct {
	Option int    `json:"option"`
	Amount uint64 `json:"amount"`
}

// PlaceStake stakes tokens on an option of an open poll for the authenticated
// caller.
// POST /api/polls/{id}/stake
func (h *StakeHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "wallet authentication required")
		return
	}

	pollID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed poll id")
		return
	}

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	pos, err := h.stakes.Stake(r.Context(), pollID, caller, req.Option, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPositionResponse(pos))
}

// listPositionsResponse wraps the positions endpoint output.
type listPositionsResponse struct {
	Positions []positionResponse `json:"positions"`
}

// ListPositions returns the caller's positions on a poll. An explicit
// ?account= query overrides the authenticated caller, so anyone can inspect
// public positions.
// GET /api/polls/{id}/positions?account=0x...
func (h *StakeHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	pollID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed poll id")
		return
	}

	var account common.Address
	if raw := r.URL.Query().Get("account"); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "malformed account address")
			return
		}
		account = common.HexToAddress(raw)
	} else {
		caller, ok := middleware.CallerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusBadRequest, "account query parameter required")
			return
		}
		account = caller
	}

	positions, err := h.stakes.Positions(r.Context(), pollID, account)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}
