package mirror

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/engine"
)

// Snapshot is an immutable view of the mirrored state. Game is nil until the
// first sync or patch. Callers must not modify anything reachable from a
// Snapshot; use Game.Clone() for a private copy.
type Snapshot struct {
	Version   int               `json:"version"`
	Game      *engine.State     `json:"game"`
	Self      *engine.Player    `json:"self"`
	Organizer *engine.Organizer `json:"organizer"`
}

// Mirror is the client's copy of shared game state. It has one writer (the
// message router); readers load the current Snapshot without locking and
// never see a half-applied mutation.
type Mirror struct {
	mu      sync.Mutex
	cur     atomic.Pointer[Snapshot]
	clients map[string]chan Snapshot
	log     *zap.Logger
}

func New(log *zap.Logger) *Mirror {
	m := &Mirror{
		clients: make(map[string]chan Snapshot),
		log:     log.Named("mirror"),
	}
	m.cur.Store(&Snapshot{})
	return m
}

func (m *Mirror) Snapshot() Snapshot { return *m.cur.Load() }

// Subscribe registers out to receive every new snapshot, starting with the
// current one. A subscriber whose channel is full is dropped and its channel
// closed.
func (m *Mirror) Subscribe(id string, out chan Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.clients[id]; ok && old != out {
		close(old)
	}
	m.clients[id] = out
	select {
	case out <- *m.cur.Load():
	default:
	}
}

func (m *Mirror) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.clients[id]; ok {
		close(ch)
		delete(m.clients, id)
	}
}

func (m *Mirror) NumSubscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Mirror) SetPlayer(p engine.Player) {
	m.update(func(s *Snapshot) { s.Self = &p })
}

func (m *Mirror) SetOrganizer(o engine.Organizer) {
	m.update(func(s *Snapshot) { s.Organizer = &o })
}

func (m *Mirror) SetActivePlayers(players []engine.Player) {
	m.patch(func(g engine.State) engine.State { return engine.SetActivePlayers(g, players) })
}

// UpdatePlayer replaces p in the active list. With refreshSelf, the own-player
// record is replaced too when the ids match, in the same publish.
func (m *Mirror) UpdatePlayer(p engine.Player, refreshSelf bool) (found bool) {
	m.update(func(s *Snapshot) {
		var g engine.State
		g, found = engine.UpdatePlayer(gameOrEmpty(s.Game), p)
		s.Game = &g
		if refreshSelf && s.Self != nil && s.Self.ID == p.ID {
			self := p
			s.Self = &self
		}
	})
	return found
}

func (m *Mirror) SetRound(r engine.Round) {
	m.patch(func(g engine.State) engine.State { return engine.SetRound(g, r) })
}

// SetGameState replaces round, players and choices wholesale.
func (m *Mirror) SetGameState(gs engine.State) {
	m.update(func(s *Snapshot) {
		g := gs.Clone()
		s.Game = &g
	})
}

func (m *Mirror) SetPlayerChoice(playerID int, c engine.Choice) {
	m.patch(func(g engine.State) engine.State { return engine.SetPlayerChoice(g, playerID, c) })
}

func (m *Mirror) SetChoices(choices engine.ChoiceMap) {
	m.patch(func(g engine.State) engine.State { return engine.SetChoices(g, choices) })
}

// patch applies a game-state patch, materializing an empty game first when
// no full sync has happened yet.
func (m *Mirror) patch(fn func(engine.State) engine.State) {
	m.update(func(s *Snapshot) {
		g := fn(gameOrEmpty(s.Game))
		s.Game = &g
	})
}

func (m *Mirror) update(fn func(s *Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.cur.Load()
	fn(&next)
	next.Version++
	m.cur.Store(&next)
	m.broadcast(next)
}

func (m *Mirror) broadcast(snap Snapshot) {
	for id, ch := range m.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Subscriber is slow/full - drop them.
			m.log.Debug("dropping slow subscriber", zap.String("id", id))
			close(ch)
			delete(m.clients, id)
		}
	}
}

func gameOrEmpty(g *engine.State) engine.State {
	if g == nil {
		return engine.NewEmptyState()
	}
	return *g
}
