package types

import (
	"encoding/json"

	"github.com/DoyleJ11/bluff-sync/internal/engine"
)

// Inbound is one decoded server message. Every action tag maps to exactly one
// variant; tags this client does not know decode as Unhandled.
type Inbound interface{ isInbound() }

type OK struct{}

type Rejected struct{ Text string }

type ShowMessage struct{ Text string }

type SetPlayer struct{ Player engine.Player }

type SetOrganizer struct{ Organizer engine.Organizer }

type RefreshActivePlayers struct{ Players []engine.Player }

type UpdatePlayer struct{ Player engine.Player }

type SetRound struct{ Round engine.Round }

type SetGameState struct{ State engine.State }

type SetPlayerChoice struct {
	Player engine.Player
	Choice engine.Choice
}

type SetChoices struct{ Choices engine.ChoiceMap }

type Unhandled struct {
	Action  string
	Payload json.RawMessage
}

func (OK) isInbound()                   {}
func (Rejected) isInbound()             {}
func (ShowMessage) isInbound()          {}
func (SetPlayer) isInbound()            {}
func (SetOrganizer) isInbound()         {}
func (RefreshActivePlayers) isInbound() {}
func (UpdatePlayer) isInbound()         {}
func (SetRound) isInbound()             {}
func (SetGameState) isInbound()         {}
func (SetPlayerChoice) isInbound()      {}
func (SetChoices) isInbound()           {}
func (Unhandled) isInbound()            {}

// Message is a decoded frame. ResponseID is "" when the frame carried none.
type Message struct {
	ResponseID string
	Action     string
	Body       Inbound
}

type gameStateWire struct {
	Round   *engine.Round            `json:"round"`
	Players []engine.Player          `json:"players"`
	Choices map[string]engine.Choice `json:"choices"`
}

type playerChoiceWire struct {
	Player engine.Player `json:"player"`
	Choice engine.Choice `json:"choice"`
}

// Decode parses one frame. When the envelope is readable but the payload is
// not, the returned Message still carries ResponseID and Action alongside the
// *DecodeError.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, &DecodeError{Err: err}
	}

	msg := Message{Action: env.Action}
	if env.ResponseID != nil {
		msg.ResponseID = *env.ResponseID
	}

	body, err := decodeBody(env.Action, env.Payload)
	if err != nil {
		return msg, &DecodeError{Action: env.Action, Err: err}
	}
	msg.Body = body
	return msg, nil
}

func decodeBody(action string, payload json.RawMessage) (Inbound, error) {
	switch action {
	case ActionOK:
		return OK{}, nil

	case ActionNG:
		return Rejected{Text: payloadText(payload)}, nil

	case ActionShowMessage:
		return ShowMessage{Text: payloadText(payload)}, nil

	case ActionSetPlayer:
		var p engine.Player
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return SetPlayer{Player: p}, nil

	case ActionSetOrganizer:
		var o engine.Organizer
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, err
		}
		return SetOrganizer{Organizer: o}, nil

	case ActionRefreshActivePlayers:
		var players []engine.Player
		if err := unmarshalNullable(payload, &players); err != nil {
			return nil, err
		}
		if players == nil {
			players = []engine.Player{}
		}
		return RefreshActivePlayers{Players: players}, nil

	case ActionUpdatePlayer:
		var p engine.Player
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return UpdatePlayer{Player: p}, nil

	case ActionSetRound:
		var r engine.Round
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		return SetRound{Round: r}, nil

	case ActionSetGameState:
		var w gameStateWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		choices, err := engine.ChoiceMapFromObject(w.Choices)
		if err != nil {
			return nil, err
		}
		s := engine.NewEmptyState()
		s.Round = w.Round
		if w.Players != nil {
			s.Players = w.Players
		}
		s.Choices = choices
		return SetGameState{State: s}, nil

	case ActionSetPlayerChoice:
		var w playerChoiceWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return SetPlayerChoice{Player: w.Player, Choice: w.Choice}, nil

	case ActionSetChoices:
		var obj map[string]engine.Choice
		if err := unmarshalNullable(payload, &obj); err != nil {
			return nil, err
		}
		choices, err := engine.ChoiceMapFromObject(obj)
		if err != nil {
			return nil, err
		}
		return SetChoices{Choices: choices}, nil

	default:
		return Unhandled{Action: action, Payload: payload}, nil
	}
}

// unmarshalNullable leaves v untouched for an absent payload.
func unmarshalNullable(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// payloadText reads a string payload, falling back to the raw JSON.
func payloadText(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return string(payload)
}
