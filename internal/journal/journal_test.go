package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemory_RecordsInOrderAndCopies(t *testing.T) {
	j := NewMemory()
	ctx := context.Background()

	data := []byte(`{"action":"ok"}`)
	require.NoError(t, j.Record(ctx, Frame{Seq: 1, Action: "ok", Data: data}))
	require.NoError(t, j.Record(ctx, Frame{Seq: 2, Action: "ng", Data: []byte(`{"action":"ng"}`)}))
	data[2] = 'X'

	frames, err := j.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, `{"action":"ok"}`, string(frames[0].Data))
	assert.Equal(t, "ng", frames[1].Action)
}

// Runs against a real database when BLUFF_TEST_JOURNAL_DSN is set.
func TestPostgres_RoundTrip(t *testing.T) {
	dsn := os.Getenv("BLUFF_TEST_JOURNAL_DSN")
	if dsn == "" {
		t.Skip("BLUFF_TEST_JOURNAL_DSN not set")
	}

	j, err := OpenPostgres(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, j.Record(ctx, Frame{Seq: 2, Action: "set-round", Data: []byte(`{}`), ReceivedAt: now}))
	require.NoError(t, j.Record(ctx, Frame{Seq: 1, Action: "ok", Data: []byte(`{}`), ReceivedAt: now}))

	frames, err := j.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "ok", frames[0].Action)
	assert.Equal(t, "set-round", frames[1].Action)
}
