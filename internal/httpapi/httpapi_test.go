package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/bluff-sync/internal/commands"
	"github.com/DoyleJ11/bluff-sync/internal/conn"
	"github.com/DoyleJ11/bluff-sync/internal/engine"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/notify"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/pkg/types"
)

type fakeConnection struct {
	mu         sync.Mutex
	state      conn.State
	override   string
	connectErr error
	ch         conn.Channel
}

func (f *fakeConnection) State() conn.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConnection) Endpoint() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.override != "" {
		return f.override
	}
	return "ws://localhost:8080"
}

func (f *fakeConnection) SetServerOverride(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = s
}

func (f *fakeConnection) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		f.state = conn.StateError
		return f.connectErr
	}
	f.state = conn.StateConnected
	return nil
}

func (f *fakeConnection) Channel() (conn.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != conn.StateConnected || f.ch == nil {
		return nil, conn.ErrNotConnected
	}
	return f.ch, nil
}

// answeringChannel plays the game server: every request is acknowledged
// through the pending table.
type answeringChannel struct {
	table *pending.Table
}

func (a answeringChannel) Send(data []byte) error {
	var env struct {
		ResponseID string `json:"responseId"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	go a.table.Resolve(env.ResponseID)
	return nil
}

type fixture struct {
	deps  Deps
	conn  *fakeConnection
	table *pending.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)

	table := pending.NewTable(ctx, log)
	fc := &fakeConnection{state: conn.StateDisconnected, ch: answeringChannel{table: table}}
	return &fixture{
		conn:  fc,
		table: table,
		deps: Deps{
			Mirror: mirror.New(log),
			Conn:   fc,
			Sender: commands.NewSender(fc, table, notify.Discard{}, time.Second, log),
			Log:    log,
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := do(t, SetupRoutes(f.deps), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetState(t *testing.T) {
	f := newFixture(t)
	f.deps.Mirror.SetRound(engine.Round{ID: 3, Number: 1, State: engine.RoundVotingTime})

	rec := do(t, SetupRoutes(f.deps), http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got mirror.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Version)
	require.NotNil(t, got.Game)
	require.NotNil(t, got.Game.Round)
	assert.Equal(t, engine.RoundVotingTime, got.Game.Round.State)
	assert.Nil(t, got.Self)
}

func TestGetChoices(t *testing.T) {
	f := newFixture(t)
	f.deps.Mirror.SetActivePlayers([]engine.Player{{ID: 1, Name: "Ann"}, {ID: 2, Name: "Bo"}, {ID: 3, Name: "Cy"}})
	f.deps.Mirror.SetChoices(engine.ChoiceMap{
		1: {ID: 9, Option: engine.OptionA, Lie: true},
		2: {ID: 4, Option: engine.OptionA},
		3: {ID: 5, Option: engine.OptionB},
	})

	rec := do(t, SetupRoutes(f.deps), http.MethodGet, "/choices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		A []struct {
			ID     int `json:"id"`
			Player struct {
				Name string `json:"name"`
			} `json:"player"`
		} `json:"a"`
		B       []json.RawMessage `json:"b"`
		TruthsA int               `json:"truthsA"`
		TruthsB int               `json:"truthsB"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.A, 2)
	assert.Equal(t, 4, got.A[0].ID)
	assert.Equal(t, "Bo", got.A[0].Player.Name)
	assert.Len(t, got.B, 1)
	assert.Equal(t, 1, got.TruthsA)
	assert.Equal(t, 1, got.TruthsB)
}

func TestConnection(t *testing.T) {
	f := newFixture(t)
	h := SetupRoutes(f.deps)

	rec := do(t, h, http.MethodGet, "/connection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"disconnected","endpoint":"ws://localhost:8080"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/connection", `{"server":"ws://other:9000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"connected","endpoint":"ws://other:9000"}`, rec.Body.String())

	f.conn.connectErr = errors.New("refused")
	rec = do(t, h, http.MethodPost, "/connection", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, h, http.MethodPost, "/connection", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnect_ChunkedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/connection", strings.NewReader(`{"server":"ws://chunked:9000"}`))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	SetupRoutes(f.deps).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ws://chunked:9000", f.conn.Endpoint())
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	h := SetupRoutes(f.deps)

	rec := do(t, h, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, f.table.Len())

	require.NoError(t, f.conn.Connect(context.Background()))
	rec = do(t, h, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.table.Len())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{conn.ErrNotConnected, http.StatusServiceUnavailable},
		{pending.ErrTimeout, http.StatusGatewayTimeout},
		{&pending.RejectionError{Text: "no"}, http.StatusConflict},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func readMsg(t *testing.T, c *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMsg(t *testing.T, c *websocket.Conn, cm types.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(cm)
	require.NoError(t, err)
	require.NoError(t, c.Write(context.Background(), websocket.MessageText, data))
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Connect(context.Background()))
	srv := httptest.NewServer(SetupRoutes(f.deps))
	t.Cleanup(srv.Close)

	c, _, err := websocket.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	first := readMsg(t, c)
	assert.Equal(t, types.MsgStateSnapshot, first.Type)
	assert.Equal(t, "connected", first.Connection)
	assert.Nil(t, first.Game)

	writeMsg(t, c, types.ClientMessage{Type: types.CmdChangePlayerPoints, RequestID: "r1", PlayerID: 7, Amount: 1})
	res := readMsg(t, c)
	assert.Equal(t, types.MsgResult, res.Type)
	assert.Equal(t, "r1", res.RequestID)
	assert.Equal(t, ErrUnknownPlayer.Error(), res.Error)

	f.deps.Mirror.SetActivePlayers([]engine.Player{{ID: 7, Name: "Ann", Points: 2}})
	snap := readMsg(t, c)
	assert.Equal(t, types.MsgStateSnapshot, snap.Type)
	assert.Equal(t, 1, snap.Version)
	require.NotNil(t, snap.Game)
	assert.Len(t, snap.Game.Players, 1)

	writeMsg(t, c, types.ClientMessage{Type: types.CmdChangePlayerPoints, RequestID: "r2", PlayerID: 7, Amount: -5})
	res = readMsg(t, c)
	assert.Equal(t, "r2", res.RequestID)
	assert.Empty(t, res.Error)

	writeMsg(t, c, types.ClientMessage{Type: "Dance", RequestID: "r3"})
	res = readMsg(t, c)
	assert.Equal(t, "r3", res.RequestID)
	assert.Contains(t, res.Error, "unknown command")

	require.NoError(t, c.Write(context.Background(), websocket.MessageText, []byte("{")))
	assert.Equal(t, types.MsgError, readMsg(t, c).Type)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return f.deps.Mirror.NumSubscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatch_Validation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Connect(context.Background()))
	s := commands.NewSender(f.conn, f.table, notify.Discard{}, time.Second, zap.NewNop())

	_, err := dispatch(s, f.deps.Mirror, types.ClientMessage{Type: types.CmdSetChoice, Option: "c"})
	assert.ErrorIs(t, err, engine.ErrUnknownChoiceOption)

	_, err = dispatch(s, f.deps.Mirror, types.ClientMessage{Type: types.CmdUpdateRound})
	assert.ErrorIs(t, err, ErrMissingRound)

	_, err = dispatch(s, f.deps.Mirror, types.ClientMessage{Type: types.CmdLoginPlayer, Name: " "})
	assert.ErrorIs(t, err, commands.ErrEmptyName)

	call, err := dispatch(s, f.deps.Mirror, types.ClientMessage{Type: types.CmdSetChoice, Option: "a"})
	require.NoError(t, err)
	require.NoError(t, call.Wait(context.Background()))
}
