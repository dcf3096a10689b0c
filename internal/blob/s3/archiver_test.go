package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stark3693/stakepoll/internal/domain"
	"github.com/stark3693/stakepoll/internal/store/memory"
)

// captureWriter records the last Put call.
type captureWriter struct {
	path        string
	contentType string
	data        []byte
}

func (w *captureWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path = path
	w.contentType = contentType
	w.data = buf
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return w.Put(ctx, path, data, "application/octet-stream")
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestArchivePollRejectsUnresolved(t *testing.T) {
	a := NewSettlementArchiver(&captureWriter{}, memory.NewStakeStore(), nil, nil)

	_, err := a.ArchivePoll(context.Background(), domain.Poll{
		ID:     uuid.New(),
		Status: domain.PollStatusOpen,
	})
	assert.ErrorIs(t, err, domain.ErrPollNotResolved)
}

func TestArchivePollWritesJSONL(t *testing.T) {
	ctx := context.Background()
	stakes := memory.NewStakeStore()
	writer := &captureWriter{}
	audit := memory.NewAuditStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	pollID := uuid.New()
	for _, p := range []struct {
		acct   string
		option int
		amount uint64
	}{
		{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 0, 60},
		{"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 1, 40},
	} {
		_, err := stakes.Record(ctx, domain.StakePosition{
			ID:        uuid.New(),
			PollID:    pollID,
			Account:   common.HexToAddress(p.acct),
			Option:    p.option,
			Amount:    p.amount,
			CreatedAt: now,
			UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	correct := 0
	resolvedAt := now.Add(-48 * time.Hour)
	poll := domain.Poll{
		ID:               pollID,
		Creator:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		OptionCount:      2,
		CreatorFeeBps:    500,
		StakingEnabled:   true,
		Status:           domain.PollStatusResolved,
		CorrectOption:    &correct,
		ResolvedAt:       &resolvedAt,
		PoolAtResolution: 100,
	}

	a := NewSettlementArchiver(writer, stakes, audit, fixedClock{now: now})
	path, err := a.ArchivePoll(ctx, poll)
	require.NoError(t, err)

	assert.Equal(t, "archive/settlements/"+pollID.String()+".jsonl", path)
	assert.Equal(t, path, writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)

	lines := bytes.Split(bytes.TrimSpace(writer.data), []byte("\n"))
	require.Len(t, lines, 3) // resolution + two positions

	var head map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &head))
	assert.Equal(t, "resolution", head["kind"])
	assert.Equal(t, pollID.String(), head["poll_id"])
	assert.Equal(t, float64(100), head["pool_at_resolution"])

	var pos map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &pos))
	assert.Equal(t, "position", pos["kind"])

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.settlement", entries[0].Event)
}
