package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stark3693/stakepoll/internal/domain"
)

// PositionArchiveStore provides the read access the archiver needs. The
// Postgres StakeStore satisfies it through its PositionsForPoll method.
type PositionArchiveStore interface {
	PositionsForPoll(ctx context.Context, pollID uuid.UUID) ([]domain.StakePosition, error)
}

// settlementRecord is one line of the JSONL settlement file. The first line
// carries the poll resolution; every subsequent line carries one stake
// position as it stood at close time.
type settlementRecord struct {
	Kind string `json:"kind"`

	// Resolution fields, set when Kind == "resolution".
	PollID           string     `json:"poll_id,omitempty"`
	Creator          string     `json:"creator,omitempty"`
	CorrectOption    *int       `json:"correct_option,omitempty"`
	CreatorFeeBps    *int       `json:"creator_fee_bps,omitempty"`
	PoolAtResolution *uint64    `json:"pool_at_resolution,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`

	// Position fields, set when Kind == "position".
	Account   string     `json:"account,omitempty"`
	Option    *int       `json:"option,omitempty"`
	Amount    *uint64    `json:"amount,omitempty"`
	Claimed   *bool      `json:"claimed,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// SettlementArchiver implements domain.Archiver by serializing a closed
// poll's resolution and positions to JSONL and uploading the file to the
// object store. The sweeper calls it before marking a poll closed so the
// final settlement state survives any later database pruning.
type SettlementArchiver struct {
	writer    domain.BlobWriter
	positions PositionArchiveStore
	audit     domain.AuditStore
	clock     domain.Clock
}

// NewSettlementArchiver creates a SettlementArchiver. The audit store is
// optional; pass nil to skip audit logging.
func NewSettlementArchiver(
	writer domain.BlobWriter,
	positions PositionArchiveStore,
	audit domain.AuditStore,
	clock domain.Clock,
) *SettlementArchiver {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &SettlementArchiver{
		writer:    writer,
		positions: positions,
		audit:     audit,
		clock:     clock,
	}
}

// ArchivePoll serializes the poll's settlement state and uploads it to
// archive/settlements/<pollID>.jsonl. It returns the object path. The poll
// must already be resolved.
func (a *SettlementArchiver) ArchivePoll(ctx context.Context, poll domain.Poll) (string, error) {
	if !poll.Resolved() {
		return "", fmt.Errorf("s3blob: archive poll %s: %w", poll.ID, domain.ErrPollNotResolved)
	}

	positions, err := a.positions.PositionsForPoll(ctx, poll.ID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive poll %s query positions: %w", poll.ID, err)
	}

	now := a.clock.Now()
	records := make([]settlementRecord, 0, len(positions)+1)

	feeBps := poll.CreatorFeeBps
	pool := poll.PoolAtResolution
	records = append(records, settlementRecord{
		Kind:             "resolution",
		PollID:           poll.ID.String(),
		Creator:          poll.Creator.Hex(),
		CorrectOption:    poll.CorrectOption,
		CreatorFeeBps:    &feeBps,
		PoolAtResolution: &pool,
		ResolvedAt:       poll.ResolvedAt,
		ArchivedAt:       &now,
	})

	for i := range positions {
		pos := positions[i]
		opt := pos.Option
		amt := pos.Amount
		claimed := pos.Claimed
		records = append(records, settlementRecord{
			Kind:      "position",
			Account:   pos.Account.Hex(),
			Option:    &opt,
			Amount:    &amt,
			Claimed:   &claimed,
			ClaimedAt: pos.ClaimedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive poll %s marshal: %w", poll.ID, err)
	}

	path := settlementPath(poll.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive poll %s upload: %w", poll.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
			"poll_id":   poll.ID.String(),
			"path":      path,
			"positions": len(positions),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive poll %s audit log: %w", poll.ID, err)
		}
	}

	return path, nil
}

// settlementPath builds the S3 key for a poll's settlement file.
//
//	archive/settlements/2f1b7c8e-....jsonl
func settlementPath(pollID uuid.UUID) string {
	return fmt.Sprintf("archive/settlements/%s.jsonl", pollID)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*SettlementArchiver)(nil)
