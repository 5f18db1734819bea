package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/commands"
	"github.com/DoyleJ11/bluff-sync/internal/conn"
	"github.com/DoyleJ11/bluff-sync/internal/engine"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
)

// Connection is the part of *conn.Manager the API drives.
type Connection interface {
	State() conn.State
	Endpoint() string
	SetServerOverride(server string)
	Connect(ctx context.Context) error
}

type Deps struct {
	Mirror *mirror.Mirror
	Conn   Connection
	Sender *commands.Sender
	Log    *zap.Logger
}

type connectionView struct {
	State    conn.State `json:"state"`
	Endpoint string     `json:"endpoint"`
}

type choicesView struct {
	engine.PlayerChoices
	TruthsA int `json:"truthsA"`
	TruthsB int `json:"truthsB"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetState(m *mirror.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

func GetConnection(c Connection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, connectionView{State: c.State(), Endpoint: c.Endpoint()})
	}
}

func GetChoices(m *mirror.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grouped := engine.GroupChoices(m.Snapshot().Game)
		writeJSON(w, http.StatusOK, choicesView{
			PlayerChoices: grouped,
			TruthsA:       engine.CountTruths(grouped.A),
			TruthsB:       engine.CountTruths(grouped.B),
		})
	}
}

// Connect (re)opens the game server connection. An optional {"server": ...}
// body sets the endpoint override first.
func Connect(c Connection, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Server *string `json:"server"`
		}
		if r.Body != nil && r.Body != http.NoBody {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		}
		if body.Server != nil {
			c.SetServerOverride(*body.Server)
		}

		if err := c.Connect(r.Context()); err != nil {
			log.Info("connect via api failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, connectionView{State: c.State(), Endpoint: c.Endpoint()})
	}
}

// Sync requests a full game state and answers with the resulting snapshot.
func Sync(s *commands.Sender, m *mirror.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, err := s.GetGameState()
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		if err := call.Wait(r.Context()); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

func statusFor(err error) int {
	var rej *pending.RejectionError
	switch {
	case errors.Is(err, conn.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, pending.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &rej):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
