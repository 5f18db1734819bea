package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/conn"
	"github.com/DoyleJ11/bluff-sync/internal/notify"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/internal/types"
)

// Conn hands out the live channel; *conn.Manager implements it.
type Conn interface {
	Channel() (conn.Channel, error)
}

// Table is where requests wait for their response; *pending.Table implements it.
type Table interface {
	Register(id string, e pending.Entry)
	Reject(id string, err error)
}

type Option func(*request)

type request struct {
	timeout time.Duration
	quiet   bool
}

// WithTimeout overrides the default deadline for one command.
func WithTimeout(d time.Duration) Option {
	return func(r *request) { r.timeout = d }
}

// NoTimeout waits for a response indefinitely. Abandoned calls then hold
// their table entry forever.
func NoTimeout() Option {
	return func(r *request) { r.timeout = 0 }
}

// Quiet suppresses the terminal notification.
func Quiet() Option {
	return func(r *request) { r.quiet = true }
}

// Sender builds request envelopes and waits for the matching response.
type Sender struct {
	conn     Conn
	table    Table
	notifier notify.Notifier
	timeout  time.Duration
	newID    func() string
	log      *zap.Logger
}

func NewSender(c Conn, t Table, n notify.Notifier, timeout time.Duration, log *zap.Logger) *Sender {
	return &Sender{
		conn:     c,
		table:    t,
		notifier: n,
		timeout:  timeout,
		newID:    uuid.NewString,
		log:      log.Named("commands"),
	}
}

// Send writes one request. It fails with conn.ErrNotConnected before
// registering anything when there is no live channel. The returned call
// completes when the response has been routed back, or with an error on
// rejection or timeout. done is the success notification text.
func (s *Sender) Send(action string, payload any, done string, opts ...Option) (*pending.Call, error) {
	req := request{timeout: s.timeout}
	for _, opt := range opts {
		opt(&req)
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}

	id := s.newID()
	data, err := types.Encode(types.Outbound{ResponseID: id, Action: action, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}

	call := pending.NewCall(id)
	s.table.Register(id, pending.Entry{
		OnSuccess: func() {
			if !req.quiet && done != "" {
				s.notifier.Notify(done, notify.Success)
			}
			call.Complete(nil)
		},
		OnFailure: func(err error) {
			s.failed(action, id, req, err)
			call.Complete(err)
		},
		Timeout: req.timeout,
	})

	if err := ch.Send(data); err != nil {
		s.table.Reject(id, err)
		return nil, err
	}

	s.log.Debug("sent", zap.String("action", action), zap.String("responseId", id))
	return call, nil
}

func (s *Sender) failed(action, id string, req request, err error) {
	s.log.Info("request failed", zap.String("action", action), zap.String("responseId", id), zap.Error(err))
	if req.quiet {
		return
	}

	var rej *pending.RejectionError
	switch {
	case errors.As(err, &rej):
		// already shown by the router
	case errors.Is(err, pending.ErrTimeout):
		s.notifier.Notify("The game server did not answer in time.", notify.Failure)
	default:
		s.notifier.Notify(fmt.Sprintf("Request failed: %v", err), notify.Failure)
	}
}
