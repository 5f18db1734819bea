package types

import "github.com/DoyleJ11/bluff-sync/internal/engine"

// Observer -> client, over the local /ws endpoint. Each command is forwarded
// to the game server and answered with a Result carrying the same RequestID.
//
// Sync: {}
// LoginPlayer: name
// LoginOrganizer: password
// SetChoice: option ("a" | "b")
// UpdateRound: round
// SetPlayerCanVote: player_id, can_vote
// SetVoteIsLie: choice_id, lie
// ChangePlayerPoints: player_id, amount (added to the mirrored total)
const (
	CmdSync               = "Sync"
	CmdLoginPlayer        = "LoginPlayer"
	CmdLoginOrganizer     = "LoginOrganizer"
	CmdSetChoice          = "SetChoice"
	CmdUpdateRound        = "UpdateRound"
	CmdSetPlayerCanVote   = "SetPlayerCanVote"
	CmdSetVoteIsLie       = "SetVoteIsLie"
	CmdChangePlayerPoints = "ChangePlayerPoints"
)

type ClientMessage struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Password  string        `json:"password,omitempty"`
	Option    string        `json:"option,omitempty"`
	Round     *engine.Round `json:"round,omitempty"`
	PlayerID  int           `json:"player_id,omitempty"`
	ChoiceID  int           `json:"choice_id,omitempty"`
	CanVote   bool          `json:"can_vote,omitempty"`
	Lie       bool          `json:"lie,omitempty"`
	Amount    int           `json:"amount,omitempty"`
}
