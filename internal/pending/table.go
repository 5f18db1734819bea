package pending

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrTimeout = errors.New("request timed out")
var ErrClosed = errors.New("correlation table closed")
var ErrSuperseded = errors.New("correlation id registered again")

// RejectionError is the server's "ng" answer to a request.
type RejectionError struct{ Text string }

func (e *RejectionError) Error() string { return "server rejected request: " + e.Text }

// Entry is a pending request. OnFailure and Timeout are independent: with a
// timeout but no OnFailure the entry is dropped silently when it expires.
// Continuations run on the table goroutine and must not block.
type Entry struct {
	OnSuccess func()
	OnFailure func(error)
	Timeout   time.Duration
}

type Msg interface{ isTableMsg() }

type Register struct {
	ID    string
	Entry Entry
}

type Resolve struct{ ID string }

type Reject struct {
	ID  string
	Err error
}

type Count struct{ Reply chan int }

type Shutdown struct{}

type expire struct {
	ID  string
	Seq uint64
}

func (Register) isTableMsg() {}
func (Resolve) isTableMsg()  {}
func (Reject) isTableMsg()   {}
func (Count) isTableMsg()    {}
func (Shutdown) isTableMsg() {}
func (expire) isTableMsg()   {}

type entry struct {
	Entry
	seq   uint64
	timer *time.Timer
}

// Table maps correlation ids to pending entries. A single goroutine owns the
// map, so resolution, rejection and expiry of one id are mutually exclusive:
// whichever message reaches the inbox first removes the entry.
type Table struct {
	inbox   chan Msg
	entries map[string]*entry
	seq     uint64
	log     *zap.Logger

	// closed is set once shutdown has begun; senders hold mu.RLock across
	// the inbox send so the final drain sees every accepted message.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTable(parent context.Context, log *zap.Logger) *Table {
	ctx, cancel := context.WithCancel(parent)
	t := &Table{
		inbox:   make(chan Msg, 64),
		entries: make(map[string]*entry),
		log:     log.Named("pending"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go t.loop()
	return t
}

func (t *Table) Inbox() chan<- Msg { return t.inbox }

func (t *Table) Register(id string, e Entry) {
	if !t.send(Register{ID: id, Entry: e}) && e.OnFailure != nil {
		e.OnFailure(ErrClosed)
	}
}

// Resolve is a no-op for unknown or already settled ids.
func (t *Table) Resolve(id string) { t.send(Resolve{ID: id}) }

func (t *Table) Reject(id string, err error) { t.send(Reject{ID: id, Err: err}) }

func (t *Table) Len() int {
	reply := make(chan int, 1)
	if !t.send(Count{Reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-t.ctx.Done():
		return 0
	}
}

func (t *Table) Shutdown() { t.send(Shutdown{}) }

// Expect registers id and returns a Call settled by its continuations.
func (t *Table) Expect(id string, timeout time.Duration) *Call {
	call := NewCall(id)
	t.Register(id, Entry{
		OnSuccess: func() { call.Complete(nil) },
		OnFailure: call.Complete,
		Timeout:   timeout,
	})
	return call
}

func (t *Table) send(m Msg) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return false
	}
	select {
	case <-t.ctx.Done():
		return false
	default:
	}
	select {
	case t.inbox <- m:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *Table) loop() {
	for {
		select {
		case <-t.ctx.Done():
			t.shutdown()
			return

		case m := <-t.inbox:
			switch msg := m.(type) {
			case Register:
				t.register(msg.ID, msg.Entry)

			case Resolve:
				if e := t.take(msg.ID); e != nil && e.OnSuccess != nil {
					e.OnSuccess()
				}

			case Reject:
				if e := t.take(msg.ID); e != nil && e.OnFailure != nil {
					e.OnFailure(msg.Err)
				}

			case expire:
				e, ok := t.entries[msg.ID]
				if !ok || e.seq != msg.Seq {
					// settled or re-registered before the timer fired
					break
				}
				delete(t.entries, msg.ID)
				t.log.Debug("request expired", zap.String("id", msg.ID))
				if e.OnFailure != nil {
					e.OnFailure(ErrTimeout)
				}

			case Count:
				// Reply must be buffered.
				msg.Reply <- len(t.entries)

			case Shutdown:
				t.shutdown()
				return
			}
		}
	}
}

func (t *Table) register(id string, e Entry) {
	if old := t.take(id); old != nil {
		t.log.Warn("correlation id registered twice, failing older entry", zap.String("id", id))
		if old.OnFailure != nil {
			old.OnFailure(ErrSuperseded)
		}
	}

	t.seq++
	pe := &entry{Entry: e, seq: t.seq}
	if e.Timeout > 0 {
		seq := pe.seq
		pe.timer = time.AfterFunc(e.Timeout, func() {
			select {
			case t.inbox <- expire{ID: id, Seq: seq}:
			case <-t.ctx.Done():
			}
		})
	}
	t.entries[id] = pe
}

func (t *Table) take(id string) *entry {
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}

func (t *Table) shutdown() {
	t.cancel()
	// wait out in-flight senders; none can start after this
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	for id, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(t.entries, id)
		if e.OnFailure != nil {
			e.OnFailure(ErrClosed)
		}
	}

	// registrations that raced with shutdown
	for {
		select {
		case m := <-t.inbox:
			if r, ok := m.(Register); ok && r.Entry.OnFailure != nil {
				r.Entry.OnFailure(ErrClosed)
			}
		default:
			return
		}
	}
}
