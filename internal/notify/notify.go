package notify

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Failure Severity = "failure"
)

// Notifier is how the sync layer asks the presentation layer to tell the
// user something. Implementations must not block.
type Notifier interface {
	Notify(text string, sev Severity)
	Progress(text string) Progress
}

// Progress is a transient in-progress notice.
type Progress interface {
	Dismiss()
}

type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notify")}
}

func (l *Log) Notify(text string, sev Severity) {
	switch sev {
	case Failure:
		l.log.Warn(text, zap.String("severity", string(sev)))
	default:
		l.log.Info(text, zap.String("severity", string(sev)))
	}
}

func (l *Log) Progress(text string) Progress {
	l.log.Info(text, zap.String("severity", "progress"))
	return dismissFunc(func() { l.log.Debug("dismissed", zap.String("text", text)) })
}

type dismissFunc func()

func (f dismissFunc) Dismiss() { f() }

// Notification is one entry delivered on a Feed.
type Notification struct {
	ID       uint64   `json:"id"`
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
	// InProgress entries are followed by a Dismissed entry with the same ID.
	InProgress bool `json:"inProgress,omitempty"`
	Dismissed  bool `json:"dismissed,omitempty"`
}

// Feed delivers notifications on a channel for a presentation layer. When the
// consumer falls behind, new notifications are dropped.
type Feed struct {
	out    chan Notification
	nextID atomic.Uint64
}

func NewFeed(buffer int) *Feed {
	return &Feed{out: make(chan Notification, buffer)}
}

func (f *Feed) C() <-chan Notification { return f.out }

func (f *Feed) Notify(text string, sev Severity) {
	f.push(Notification{ID: f.nextID.Add(1), Text: text, Severity: sev})
}

func (f *Feed) Progress(text string) Progress {
	id := f.nextID.Add(1)
	f.push(Notification{ID: id, Text: text, Severity: Info, InProgress: true})
	var once sync.Once
	return dismissFunc(func() {
		once.Do(func() { f.push(Notification{ID: id, Text: text, Severity: Info, Dismissed: true}) })
	})
}

func (f *Feed) push(n Notification) {
	select {
	case f.out <- n:
	default:
	}
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(text string, sev Severity) {
	for _, n := range m {
		n.Notify(text, sev)
	}
}

func (m Multi) Progress(text string) Progress {
	ps := make([]Progress, 0, len(m))
	for _, n := range m {
		ps = append(ps, n.Progress(text))
	}
	return dismissFunc(func() {
		for _, p := range ps {
			p.Dismiss()
		}
	})
}

// Discard drops everything.
type Discard struct{}

func (Discard) Notify(string, Severity) {}

func (Discard) Progress(string) Progress { return dismissFunc(func() {}) }
