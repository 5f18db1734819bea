package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/bluff-sync/internal/conn"
	"github.com/DoyleJ11/bluff-sync/internal/engine"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/internal/router"
)

const waitFor = 2 * time.Second

type wireRequest struct {
	ResponseID string          `json:"responseId"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
}

// fakeServer reads requests in batches of size batch and hands them to
// reply, which returns the frames to write back.
func fakeServer(t *testing.T, batch int, reply func(reqs []wireRequest) []string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			var reqs []wireRequest
			for len(reqs) < batch {
				_, data, err := c.Read(ctx)
				if err != nil {
					return
				}
				var req wireRequest
				if err := json.Unmarshal(data, &req); err != nil {
					return
				}
				reqs = append(reqs, req)
			}
			for _, frame := range reply(reqs) {
				if err := c.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type stack struct {
	sender *Sender
	mirror *mirror.Mirror
	table  *pending.Table
	notes  *notes
}

func newStack(t *testing.T, endpoint string) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)

	st := &stack{mirror: mirror.New(log), notes: &notes{}}
	st.table = pending.NewTable(ctx, log)
	r := router.New(ctx, st.mirror, st.table, st.notes, log)
	m := conn.NewManager(ctx, conn.Options{Server: endpoint, DialTimeout: waitFor}, r, st.notes, log)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Connect(ctx))

	st.sender = NewSender(m, st.table, st.notes, waitFor, log)
	return st
}

func wait(t *testing.T, call *pending.Call) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := call.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func TestStack_FullSync(t *testing.T) {
	endpoint := fakeServer(t, 1, func(reqs []wireRequest) []string {
		return []string{fmt.Sprintf(`{"responseId":%q,"action":"set-game-state","payload":{
			"round":{"id":1,"number":1,"phase":1,"state":"show-choices","question":"q","choiceA":"a","choiceB":"b"},
			"players":[{"id":1,"name":"Ann","points":2,"canVote":true}],
			"choices":{"1":{"id":7,"option":"b","lie":true}}}}`, reqs[0].ResponseID)}
	})
	st := newStack(t, endpoint)

	call, err := st.sender.GetGameState()
	require.NoError(t, err)
	require.NoError(t, wait(t, call))

	snap := st.mirror.Snapshot()
	require.NotNil(t, snap.Game)
	require.NotNil(t, snap.Game.Round)
	assert.Equal(t, engine.RoundShowChoices, snap.Game.Round.State)
	assert.Equal(t, []engine.Player{{ID: 1, Name: "Ann", Points: 2, CanVote: true}}, snap.Game.Players)
	assert.Equal(t, engine.Choice{ID: 7, Option: engine.OptionB, Lie: true}, snap.Game.Choices[1])
	assert.Equal(t, 0, st.table.Len())
	assert.Contains(t, st.notes.all(), "success: Game state synchronized.")
}

func TestStack_OutOfOrderResponses(t *testing.T) {
	endpoint := fakeServer(t, 2, func(reqs []wireRequest) []string {
		// answer the second request first
		return []string{
			fmt.Sprintf(`{"responseId":%q,"action":"ok"}`, reqs[1].ResponseID),
			fmt.Sprintf(`{"responseId":%q,"action":"ok"}`, reqs[0].ResponseID),
		}
	})
	st := newStack(t, endpoint)
	org := NewOrganizer(st.sender)

	a, err := org.SetPlayerCanVote(engine.Player{ID: 1}, true)
	require.NoError(t, err)
	b, err := org.SetVoteIsLie(engine.Choice{ID: 2}, false)
	require.NoError(t, err)

	require.NoError(t, wait(t, b))
	require.NoError(t, wait(t, a))
	assert.Equal(t, 0, st.table.Len())
}

func TestStack_Rejection(t *testing.T) {
	endpoint := fakeServer(t, 1, func(reqs []wireRequest) []string {
		return []string{fmt.Sprintf(`{"responseId":%q,"action":"ng","payload":"Name already taken"}`, reqs[0].ResponseID)}
	})
	st := newStack(t, endpoint)

	call, err := NewPlayer(st.sender).Login("Ann")
	require.NoError(t, err)

	var rej *pending.RejectionError
	require.True(t, errors.As(wait(t, call), &rej))
	assert.Equal(t, "Name already taken", rej.Text)

	var failures []string
	for _, n := range st.notes.all() {
		if strings.HasPrefix(n, "failure: ") {
			failures = append(failures, n)
		}
	}
	assert.Equal(t, []string{"failure: Name already taken"}, failures)
}

func TestStack_Timeout(t *testing.T) {
	endpoint := fakeServer(t, 1, func([]wireRequest) []string { return nil })
	st := newStack(t, endpoint)

	call, err := st.sender.GetGameState(WithTimeout(50 * time.Millisecond))
	require.NoError(t, err)
	require.ErrorIs(t, wait(t, call), pending.ErrTimeout)
	assert.Contains(t, st.notes.all(), "failure: The game server did not answer in time.")
	assert.Equal(t, 0, st.table.Len())
}
