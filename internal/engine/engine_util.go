package engine

import (
	"fmt"
	"strconv"
	"strings"
)

func NewEmptyState() State {
	return State{
		Round:   nil,
		Players: []Player{},
		Choices: ChoiceMap{},
	}
}

// ChoiceMapFromObject converts the server's string-keyed choices object. A nil
// object yields an empty map.
func ChoiceMapFromObject(obj map[string]Choice) (ChoiceMap, error) {
	m := make(ChoiceMap, len(obj))
	for key, c := range obj {
		id, err := parsePlayerKey(key)
		if err != nil {
			return nil, err
		}
		m[id] = c
	}
	return m, nil
}

// PlayerMapFromObject is the player-list counterpart of ChoiceMapFromObject.
func PlayerMapFromObject(obj map[string]Player) (map[int]Player, error) {
	m := make(map[int]Player, len(obj))
	for key, p := range obj {
		id, err := parsePlayerKey(key)
		if err != nil {
			return nil, err
		}
		m[id] = p
	}
	return m, nil
}

func parsePlayerKey(key string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadPlayerKey, key)
	}
	return id, nil
}

// ClampPoints applies delta to current and never goes below zero.
func ClampPoints(current, delta int) int {
	points := current + delta
	if points < 0 {
		points = 0
	}
	return points
}

func FindPlayer(s State, id int) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
