package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/commands"
	"github.com/DoyleJ11/bluff-sync/internal/engine"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/pkg/types"
)

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrUnknownPlayer  = errors.New("player is not in the active list")
	ErrMissingRound   = errors.New("round is required")
)

const writeTimeout = 3 * time.Second

// Stream serves observers over a websocket: every mirror snapshot is pushed
// as a StateSnapshot and command messages are forwarded to the game server.
func Stream(d Deps) http.HandlerFunc {
	log := d.Log.Named("stream")
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")

		snaps := make(chan mirror.Snapshot, 8)
		replies := make(chan types.ServerMessage, 8)
		clientID := uuid.NewString()

		d.Mirror.Subscribe(clientID, snaps)
		defer d.Mirror.Unsubscribe(clientID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			for {
				var msg types.ServerMessage
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-snaps:
					if !ok {
						// dropped as a slow subscriber
						return
					}
					msg = snapshotMessage(snap, d.Conn)
				case msg = <-replies:
				}
				payload, _ := json.Marshal(msg)
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := c.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					return
				}
			}
		}()

		reply := func(msg types.ServerMessage) {
			select {
			case replies <- msg:
			case <-ctx.Done():
			}
		}

		// Reader loop
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("observer read ended", zap.String("client", clientID), zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reply(types.ServerMessage{Type: types.MsgError, Error: "bad json"})
				continue
			}

			call, err := dispatch(d.Sender, d.Mirror, cm)
			if err != nil {
				reply(types.ServerMessage{Type: types.MsgResult, RequestID: cm.RequestID, Error: err.Error()})
				continue
			}
			go func() {
				msg := types.ServerMessage{Type: types.MsgResult, RequestID: cm.RequestID}
				if err := call.Wait(ctx); err != nil {
					msg.Error = err.Error()
				}
				reply(msg)
			}()
		}
	}
}

func snapshotMessage(snap mirror.Snapshot, c Connection) types.ServerMessage {
	return types.ServerMessage{
		Type:       types.MsgStateSnapshot,
		Version:    snap.Version,
		Connection: string(c.State()),
		Game:       snap.Game,
		Self:       snap.Self,
		Organizer:  snap.Organizer,
	}
}

// dispatch turns an observer command into a game server request.
func dispatch(s *commands.Sender, m *mirror.Mirror, cm types.ClientMessage) (*pending.Call, error) {
	player, org := commands.NewPlayer(s), commands.NewOrganizer(s)

	switch cm.Type {
	case types.CmdSync:
		return s.GetGameState()
	case types.CmdLoginPlayer:
		return player.Login(cm.Name)
	case types.CmdLoginOrganizer:
		return org.Login(cm.Password)
	case types.CmdSetChoice:
		var opt engine.ChoiceOption
		if err := opt.UnmarshalText([]byte(cm.Option)); err != nil {
			return nil, err
		}
		return player.SetChoice(opt)
	case types.CmdUpdateRound:
		if cm.Round == nil {
			return nil, ErrMissingRound
		}
		return org.UpdateRound(*cm.Round)
	case types.CmdSetPlayerCanVote:
		return org.SetPlayerCanVote(engine.Player{ID: cm.PlayerID}, cm.CanVote)
	case types.CmdSetVoteIsLie:
		return org.SetVoteIsLie(engine.Choice{ID: cm.ChoiceID}, cm.Lie)
	case types.CmdChangePlayerPoints:
		game := m.Snapshot().Game
		if game == nil {
			return nil, ErrUnknownPlayer
		}
		p, ok := engine.FindPlayer(*game, cm.PlayerID)
		if !ok {
			return nil, ErrUnknownPlayer
		}
		return org.ChangePlayerPoints(p, cm.Amount)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cm.Type)
	}
}
