package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/server/middleware"
)

// ClaimService defines the engine methods the claim handler requires.
type ClaimService interface {
	ClaimCreatorFee(ctx context.Context, pollID uuid.UUID, caller common.Address) (uint64, error)
	ClaimReward(ctx context.Context, pollID, positionID uuid.UUID, caller common.Address) (uint64, error)
}

// ClaimHandler serves the creator-fee and winner-reward claim endpoints.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logger,
	}
}

// claimResponse reports the amount credited by a successful claim.
type claimResponse struct {
	PollID string `json:"poll_id"`
	Amount uint64 `json:"amount"`
}

// ClaimCreatorFee pays out the creator fee to the poll creator.
// POST /api/polls/{id}/claim/fee
func (h *ClaimHandler) ClaimCreatorFee(w http.ResponseWriter, r *http.Request) {
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

	amount, err := h.claims.ClaimCreatorFee(r.Context(), pollID, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		PollID: pollID.String(),
		Amount: amount,
	})
}

// claimRewardRequest names the position being claimed.
type claimRewardRequest struct {
	PositionID string `json:"position_id"`
}

// ClaimReward pays out a winning position's reward to its owner.
// POST /api/polls/{id}/claim/reward
func (h *ClaimHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
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

	var req claimRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	positionID, err := uuid.Parse(req.PositionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed position id")
		return
	}

	amount, err := h.claims.ClaimReward(r.Context(), pollID, positionID, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		PollID: pollID.String(),
		Amount: amount,
	})
}
