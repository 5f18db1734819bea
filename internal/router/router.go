package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/journal"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/notify"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/internal/types"
)

const (
	journalBuffer  = 256
	journalTimeout = 2 * time.Second
)

type Msg interface{ isRouterMsg() }

// Frame is one raw inbound text frame.
type Frame struct{ Data []byte }

// Flush replies once every message queued before it has been handled.
type Flush struct{ Reply chan struct{} }

type Shutdown struct{}

func (Frame) isRouterMsg()    {}
func (Flush) isRouterMsg()    {}
func (Shutdown) isRouterMsg() {}

// Resolver settles pending requests by correlation id.
type Resolver interface {
	Resolve(id string)
	Reject(id string, err error)
}

type Option func(*Router)

// WithSelfRefresh controls whether update-player also replaces the own-player
// record when the ids match. Enabled by default.
func WithSelfRefresh(enabled bool) Option {
	return func(r *Router) { r.selfRefresh = enabled }
}

// WithJournal records every inbound frame. Writes happen on their own
// goroutine; frames are dropped while the journal is behind.
func WithJournal(j journal.Journal) Option {
	return func(r *Router) { r.journal = j }
}

// Router is the only writer of the mirror. Frames are handled one at a time,
// in arrival order, on the router goroutine.
type Router struct {
	inbox       chan Msg
	mirror      *mirror.Mirror
	table       Resolver
	notifier    notify.Notifier
	journal     journal.Journal
	journalQ    chan journal.Frame
	selfRefresh bool
	seq         uint64
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(parent context.Context, m *mirror.Mirror, table Resolver, n notify.Notifier, log *zap.Logger, opts ...Option) *Router {
	r := newRouter(parent, m, table, n, log, opts...)
	if r.journal != nil {
		go r.writeJournal()
	}
	go r.loop()
	return r
}

func newRouter(parent context.Context, m *mirror.Mirror, table Resolver, n notify.Notifier, log *zap.Logger, opts ...Option) *Router {
	ctx, cancel := context.WithCancel(parent)
	r := &Router{
		inbox:       make(chan Msg, 64), // Small buffer
		mirror:      m,
		table:       table,
		notifier:    n,
		selfRefresh: true,
		log:         log.Named("router"),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.journal != nil {
		r.journalQ = make(chan journal.Frame, journalBuffer)
	}
	return r
}

func (r *Router) Inbox() chan<- Msg { return r.inbox }

// Deliver queues a frame, blocking while the inbox is full.
func (r *Router) Deliver(ctx context.Context, data []byte) error {
	select {
	case r.inbox <- Frame{Data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
}

// Flush waits until every frame delivered so far has been handled.
func (r *Router) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case r.inbox <- Flush{Reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
}

func (r *Router) Shutdown() {
	select {
	case r.inbox <- Shutdown{}:
	case <-r.ctx.Done():
	}
}

func (r *Router) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Frame:
				r.safeHandle(msg.Data)

			case Flush:
				close(msg.Reply)

			case Shutdown:
				r.cancel()
				return
			}
		}
	}
}

func (r *Router) safeHandle(data []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("recovered while handling frame", zap.Any("panic", p), zap.ByteString("frame", data))
		}
	}()
	r.Handle(data)
}

// Handle decodes and dispatches one frame synchronously. Malformed frames are
// logged and dropped; a correlated request is rejected with the decode error.
func (r *Router) Handle(data []byte) {
	r.seq++
	msg, err := types.Decode(data)

	if r.journalQ != nil {
		f := journal.Frame{Seq: r.seq, Action: msg.Action, Data: data, ReceivedAt: time.Now()}
		select {
		case r.journalQ <- f:
		default:
			r.log.Warn("journal behind, dropping frame", zap.Uint64("seq", r.seq))
		}
	}

	if err != nil {
		r.log.Warn("dropping malformed frame", zap.Uint64("seq", r.seq), zap.Error(err))
		if msg.ResponseID != "" {
			r.table.Reject(msg.ResponseID, err)
		}
		return
	}

	r.log.Debug("inbound", zap.String("action", msg.Action), zap.String("responseId", msg.ResponseID))
	r.Apply(msg)
}

func (r *Router) writeJournal() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case f := <-r.journalQ:
			ctx, cancel := context.WithTimeout(r.ctx, journalTimeout)
			if err := r.journal.Record(ctx, f); err != nil && r.ctx.Err() == nil {
				r.log.Warn("journal record failed", zap.Uint64("seq", f.Seq), zap.Error(err))
			}
			cancel()
		}
	}
}

// Apply performs the state and notification effects of one decoded message,
// then settles its correlation id.
func (r *Router) Apply(msg types.Message) {
	switch body := msg.Body.(type) {
	case types.OK:
		// None

	case types.Rejected:
		r.notifier.Notify(body.Text, notify.Failure)
		if msg.ResponseID != "" {
			r.table.Reject(msg.ResponseID, &pending.RejectionError{Text: body.Text})
		}
		return

	case types.ShowMessage:
		r.notifier.Notify(body.Text, notify.Info)

	case types.SetPlayer:
		r.mirror.SetPlayer(body.Player)

	case types.SetOrganizer:
		r.mirror.SetOrganizer(body.Organizer)

	case types.RefreshActivePlayers:
		r.mirror.SetActivePlayers(body.Players)

	case types.UpdatePlayer:
		if !r.mirror.UpdatePlayer(body.Player, r.selfRefresh) {
			r.log.Debug("update for inactive player", zap.Int("player", body.Player.ID))
		}

	case types.SetRound:
		r.mirror.SetRound(body.Round)

	case types.SetGameState:
		r.mirror.SetGameState(body.State)

	case types.SetPlayerChoice:
		r.mirror.SetPlayerChoice(body.Player.ID, body.Choice)

	case types.SetChoices:
		r.mirror.SetChoices(body.Choices)

	case types.Unhandled:
		r.log.Debug("ignoring unknown action", zap.String("action", body.Action))

	default:
		r.log.Error("no handler for message", zap.String("type", fmt.Sprintf("%T", body)))
	}

	if msg.ResponseID != "" {
		r.table.Resolve(msg.ResponseID)
	}
}
