package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrUnknownRoundState = errors.New("unknown round state")
var ErrUnknownChoiceOption = errors.New("unknown choice option")
var ErrBadPlayerKey = errors.New("player key is not an integer")

type Player struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Points  int    `json:"points"`
	CanVote bool   `json:"canVote"`
}

// UnmarshalJSON requires an id; a missing name decodes as "".
func (p *Player) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      *int   `json:"id"`
		Name    string `json:"name"`
		Points  *int   `json:"points"`
		CanVote *bool  `json:"canVote"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == nil {
		return errors.New("player: missing field id")
	}

	*p = Player{ID: *raw.ID, Name: raw.Name}
	if raw.Points != nil {
		p.Points = max(*raw.Points, 0)
	}
	if raw.CanVote != nil {
		p.CanVote = *raw.CanVote
	}
	return nil
}

type Organizer struct {
	Name string `json:"name"`
}

type RoundState string

const (
	RoundStandby      RoundState = "standby"
	RoundShowQuestion RoundState = "show-question"
	RoundShowChoices  RoundState = "show-choices"
	RoundVotingTime   RoundState = "voting-time"
	RoundVotingLocked RoundState = "voting-locked"
	RoundShowVotes    RoundState = "show-votes"
	RoundDefense      RoundState = "defense"
	RoundShowResults  RoundState = "show-results"
)

var roundStates = map[RoundState]bool{
	RoundStandby:      true,
	RoundShowQuestion: true,
	RoundShowChoices:  true,
	RoundVotingTime:   true,
	RoundVotingLocked: true,
	RoundShowVotes:    true,
	RoundDefense:      true,
	RoundShowResults:  true,
}

func (s RoundState) Valid() bool { return roundStates[s] }

func (s *RoundState) UnmarshalText(text []byte) error {
	rs := RoundState(text)
	if !rs.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRoundState, string(text))
	}
	*s = rs
	return nil
}

type Round struct {
	ID       int        `json:"id"`
	Number   int        `json:"number"`
	Phase    int        `json:"phase"`
	State    RoundState `json:"state"`
	Question string     `json:"question"`
	ChoiceA  string     `json:"choiceA"`
	ChoiceB  string     `json:"choiceB"`
}

type ChoiceOption string

const (
	OptionA ChoiceOption = "a"
	OptionB ChoiceOption = "b"
)

func (o *ChoiceOption) UnmarshalText(text []byte) error {
	switch opt := ChoiceOption(text); opt {
	case OptionA, OptionB:
		*o = opt
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChoiceOption, string(text))
	}
}

type Choice struct {
	ID     int          `json:"id"`
	Option ChoiceOption `json:"option"`
	Lie    bool         `json:"lie"`
}

// ChoiceMap is keyed by player id.
type ChoiceMap map[int]Choice

// MarshalJSON writes the string-keyed object the server sends.
func (m ChoiceMap) MarshalJSON() ([]byte, error) {
	obj := make(map[string]Choice, len(m))
	for id, c := range m {
		obj[strconv.Itoa(id)] = c
	}
	return json.Marshal(obj)
}

type State struct {
	Round   *Round    `json:"round"`
	Players []Player  `json:"players"`
	Choices ChoiceMap `json:"choices"`
}

// Clone returns a deep copy so a published State is never shared with a writer.
func (s State) Clone() State {
	out := State{
		Players: make([]Player, len(s.Players)),
		Choices: make(ChoiceMap, len(s.Choices)),
	}
	if s.Round != nil {
		r := *s.Round
		out.Round = &r
	}
	copy(out.Players, s.Players)
	for id, c := range s.Choices {
		out.Choices[id] = c
	}
	return out
}

// SetActivePlayers replaces the player list wholesale, keeping server order.
func SetActivePlayers(s State, players []Player) State {
	newState := s.Clone()
	newState.Players = append([]Player{}, players...)
	return newState
}

// UpdatePlayer replaces the entry with p.ID in place. The list never grows or
// shrinks; found is false when no entry matched.
func UpdatePlayer(s State, p Player) (State, bool) {
	newState := s.Clone()
	found := false
	for i := range newState.Players {
		if newState.Players[i].ID == p.ID {
			newState.Players[i] = p
			found = true
		}
	}
	return newState, found
}

func SetRound(s State, r Round) State {
	newState := s.Clone()
	newState.Round = &r
	return newState
}

// SetPlayerChoice overwrites the player's entry; no history is kept.
func SetPlayerChoice(s State, playerID int, c Choice) State {
	newState := s.Clone()
	newState.Choices[playerID] = c
	return newState
}

func SetChoices(s State, choices ChoiceMap) State {
	newState := s.Clone()
	newState.Choices = make(ChoiceMap, len(choices))
	for id, c := range choices {
		newState.Choices[id] = c
	}
	return newState
}
