package commands

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/bluff-sync/internal/engine"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/internal/types"
)

var ErrEmptyName = errors.New("player name is empty")

// GetGameState asks for a full sync.
func (s *Sender) GetGameState(opts ...Option) (*pending.Call, error) {
	return s.Send(types.ActionGetGameState, nil, "Game state synchronized.", opts...)
}

// Player actions.
type Player struct{ s *Sender }

func NewPlayer(s *Sender) Player { return Player{s: s} }

// Login registers the client as a player. The name is trimmed and NFC
// normalized so visually equal names compare equal on the server.
func (p Player) Login(name string, opts ...Option) (*pending.Call, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrEmptyName
	}
	return p.s.Send(types.ActionLoginPlayer, name, "Logged in as "+name+".", opts...)
}

func (p Player) SetChoice(opt engine.ChoiceOption, opts ...Option) (*pending.Call, error) {
	return p.s.Send(types.ActionSetChoice, opt, "Choice submitted.", opts...)
}

// Organizer actions.
type Organizer struct{ s *Sender }

func NewOrganizer(s *Sender) Organizer { return Organizer{s: s} }

func (o Organizer) Login(password string, opts ...Option) (*pending.Call, error) {
	return o.s.Send(types.ActionLoginOrganizer, password, "Logged in as organizer.", opts...)
}

func (o Organizer) UpdateRound(r engine.Round, opts ...Option) (*pending.Call, error) {
	return o.s.Send(types.ActionSetRound, r, "Round updated.", opts...)
}

func (o Organizer) SetPlayerCanVote(p engine.Player, canVote bool, opts ...Option) (*pending.Call, error) {
	payload := types.PlayerCanVote{ID: p.ID, CanVote: canVote}
	return o.s.Send(types.ActionSetPlayerCanVote, payload, "Voting permission updated.", opts...)
}

func (o Organizer) SetVoteIsLie(c engine.Choice, lie bool, opts ...Option) (*pending.Call, error) {
	payload := types.VoteIsLie{ID: c.ID, Lie: lie}
	return o.s.Send(types.ActionSetVoteIsLie, payload, "Vote updated.", opts...)
}

// ChangePlayerPoints sends the player's new total, never below zero. The
// server still validates the value.
func (o Organizer) ChangePlayerPoints(p engine.Player, amount int, opts ...Option) (*pending.Call, error) {
	payload := types.PlayerPoints{ID: p.ID, Points: engine.ClampPoints(p.Points, amount)}
	return o.s.Send(types.ActionSetPlayerPoints, payload, "Points updated.", opts...)
}
