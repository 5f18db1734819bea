package types

import "github.com/DoyleJ11/bluff-sync/internal/engine"

// Client -> observer.
//
// StateSnapshot: version, connection, game (null until the first sync), self, organizer
// Result: request_id, error (empty on success)
// Error: error
const (
	MsgStateSnapshot = "StateSnapshot"
	MsgResult        = "Result"
	MsgError         = "Error"
)

type ServerMessage struct {
	Type       string            `json:"type"`
	Version    int               `json:"version,omitempty"`
	Connection string            `json:"connection,omitempty"`
	Game       *engine.State     `json:"game,omitempty"`
	Self       *engine.Player    `json:"self,omitempty"`
	Organizer  *engine.Organizer `json:"organizer,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Error      string            `json:"error,omitempty"`
}
