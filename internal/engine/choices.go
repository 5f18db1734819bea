package engine

import (
	"cmp"
	"slices"
)

type PlayerChoice struct {
	Player   Player `json:"player"`
	Lie      bool   `json:"lie"`
	ChoiceID int    `json:"id"`
}

type PlayerChoices struct {
	A []PlayerChoice `json:"a"`
	B []PlayerChoice `json:"b"`
}

// GroupChoices buckets each active player's choice by option, ordered by
// choice id. Players without a choice are skipped.
func GroupChoices(s *State) PlayerChoices {
	out := PlayerChoices{A: []PlayerChoice{}, B: []PlayerChoice{}}
	if s == nil {
		return out
	}

	for _, p := range s.Players {
		c, ok := s.Choices[p.ID]
		if !ok {
			continue
		}
		pc := PlayerChoice{Player: p, Lie: c.Lie, ChoiceID: c.ID}
		switch c.Option {
		case OptionA:
			out.A = append(out.A, pc)
		case OptionB:
			out.B = append(out.B, pc)
		}
	}

	byID := func(a, b PlayerChoice) int { return cmp.Compare(a.ChoiceID, b.ChoiceID) }
	slices.SortStableFunc(out.A, byID)
	slices.SortStableFunc(out.B, byID)
	return out
}

func CountTruths(choices []PlayerChoice) int {
	count := 0
	for _, c := range choices {
		if !c.Lie {
			count++
		}
	}
	return count
}
