package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/engine"
	"github.com/stark3693/stakepoll/internal/server/middleware"

	"github.com/stark3693/stakepoll/internal/domain"
)

// PollService defines the engine methods the poll handler requires. It is
// declared locally so the handler package does not depend on the concrete
// engine type.
type PollService interface {
	CreatePoll(ctx context.Context, params engine.CreatePollParams) (domain.Poll, error)
	Poll(ctx context.Context, id uuid.UUID) (domain.Poll, error)
	Polls(ctx context.Context, opts domain.ListOpts) ([]domain.Poll, error)
	Tally(ctx context.Context, pollID uuid.UUID) (domain.Tally, error)
	Resolve(ctx context.Context, pollID uuid.UUID, correctOption int, caller common.Address) (domain.Poll, error)
}

// PollHandler serves poll lifecycle HTTP endpoints.
type PollHandler struct {
	polls  PollService
	logger *slog.Logger
}

// NewPollHandler creates a PollHandler with the given service and logger.
func NewPollHandler(polls PollService, logger *slog.Logger) *PollHandler {
	return &PollHandler{
		polls:  polls,
		logger: logger,
	}
}

// pollResponse is the JSON shape of a poll.
type pollResponse struct {
	ID                string     `json:"id"`
	Creator           string     `json:"creator"`
	OptionCount       int        `json:"option_count"`
	Deadline          time.Time  `json:"deadline"`
	CreatorFeeBps     int        `json:"creator_fee_bps"`
	StakingEnabled    bool       `json:"staking_enabled"`
	Status            string     `json:"status"`
	CorrectOption     *int       `json:"correct_option,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	PoolAtResolution  uint64     `json:"pool_at_resolution"`
	CreatorFeeClaimed bool       `json:"creator_fee_claimed"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toPollResponse(p domain.Poll) pollResponse {
	return pollResponse{
		ID:                p.ID.String(),
		Creator:           p.Creator.Hex(),
		OptionCount:       p.OptionCount,
		Deadline:          p.Deadline,
		CreatorFeeBps:     p.CreatorFeeBps,
		StakingEnabled:    p.StakingEnabled,
		Status:            string(p.Status),
		CorrectOption:     p.CorrectOption,
		ResolvedAt:        p.ResolvedAt,
		PoolAtResolution:  p.PoolAtResolution,
		CreatorFeeClaimed: p.CreatorFeeClaimed,
		CreatedAt:         p.CreatedAt,
	}
}

// createPollRequest is the JSON body for poll creation.
type createPollRequest struct {
	OptionCount    int       `json:"option_count"`
	Deadline       time.Time `json:"deadline"`
	CreatorFeeBps  int       `json:"creator_fee_bps"`
	StakingEnabled bool      `json:"staking_enabled"`
}

// CreatePoll creates a new poll owned by the authenticated caller.
// POST /api/polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "wallet authentication required")
		return
	}

	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	poll, err := h.polls.CreatePoll(r.Context(), engine.CreatePollParams{
		Creator:        caller,
		OptionCount:    req.OptionCount,
		Deadline:       req.Deadline,
		CreatorFeeBps:  req.CreatorFeeBps,
		StakingEnabled: req.StakingEnabled,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPollResponse(poll))
}

// listPollsResponse wraps the list endpoint output with pagination metadata.
type listPollsResponse struct {
	Polls  []pollResponse `json:"polls"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListPolls returns polls newest first with pagination.
// GET /api/polls?limit=50&offset=0
func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	polls, err := h.polls.Polls(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	out := make([]pollResponse, 0, len(polls))
	for _, p := range polls {
		out = append(out, toPollResponse(p))
	}

	writeJSON(w, http.StatusOK, listPollsResponse{
		Polls:  out,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetPoll returns a single poll by its ID.
// GET /api/polls/{id}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed poll id")
		return
	}

	poll, err := h.polls.Poll(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toPollResponse(poll))
}

// tallyResponse is the JSON shape of a poll's staked totals.
type tallyResponse struct {
	PollID    string   `json:"poll_id"`
	PerOption []uint64 `json:"per_option"`
	Total     uint64   `json:"total"`
}

// GetTally returns the per-option staked totals for a poll.
// GET /api/polls/{id}/tally
func (h *PollHandler) GetTally(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed poll id")
		return
	}

	tally, err := h.polls.Tally(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tallyResponse{
		PollID:    tally.PollID.String(),
		PerOption: tally.PerOption,
		Total:     tally.Total,
	})
}

// resolvePollRequest is the JSON body for resolution.
type resolvePollRequest struct {
	CorrectOption int `json:"correct_option"`
}

// ResolvePoll records the winning option. Only the poll creator may call it,
// and only after the deadline.
// POST /api/polls/{id}/resolve
func (h *PollHandler) ResolvePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "wallet authentication required")
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed poll id")
		return
	}

	var req resolvePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	poll, err := h.polls.Resolve(r.Context(), id, req.CorrectOption, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toPollResponse(poll))
}
