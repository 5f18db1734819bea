package types

import (
	"encoding/json"
	"fmt"
)

// Action tags sent by the server.
const (
	ActionOK                   = "ok"
	ActionNG                   = "ng"
	ActionShowMessage          = "show-message"
	ActionSetPlayer            = "set-player"
	ActionSetOrganizer         = "set-organizer"
	ActionRefreshActivePlayers = "refresh-active-players-list"
	ActionUpdatePlayer         = "update-player"
	ActionSetRound             = "set-round"
	ActionSetGameState         = "set-game-state"
	ActionSetPlayerChoice      = "set-player-choice"
	ActionSetChoices           = "set-choices"
)

// Action tags sent by the client.
const (
	ActionLoginPlayer      = "login-player"
	ActionLoginOrganizer   = "login-organizer"
	ActionGetGameState     = "get-game-state"
	ActionSetChoice        = "set-choice"
	ActionSetPlayerCanVote = "set-player-can-vote"
	ActionSetVoteIsLie     = "set-vote-is-lie"
	ActionSetPlayerPoints  = "set-player-points"
	// ActionSetRound is shared by both directions.
)

// Envelope is one text frame in either direction.
type Envelope struct {
	ResponseID *string         `json:"responseId"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type Outbound struct {
	ResponseID string `json:"responseId"`
	Action     string `json:"action"`
	Payload    any    `json:"payload,omitempty"`
}

type PlayerCanVote struct {
	ID      int  `json:"id"`
	CanVote bool `json:"canVote"`
}

type VoteIsLie struct {
	ID  int  `json:"id"`
	Lie bool `json:"lie"`
}

type PlayerPoints struct {
	ID     int `json:"id"`
	Points int `json:"points"`
}

func Encode(msg Outbound) ([]byte, error) {
	return json.Marshal(msg)
}

type DecodeError struct {
	Action string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode %q payload: %v", e.Action, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
