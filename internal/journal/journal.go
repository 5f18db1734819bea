package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Frame is one inbound frame as it arrived, before dispatch.
type Frame struct {
	Seq        uint64
	Action     string
	Data       []byte
	ReceivedAt time.Time
}

// Journal records inbound frames for diagnosis and replay. It never feeds
// state back into a running client.
type Journal interface {
	Record(ctx context.Context, f Frame) error
	Frames(ctx context.Context) ([]Frame, error)
	Close() error
}

type Memory struct {
	mu     sync.Mutex
	frames []Frame
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Data = append([]byte(nil), f.Data...)
	m.frames = append(m.frames, f)
	return nil
}

func (m *Memory) Frames(_ context.Context) ([]Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.frames...), nil
}

func (m *Memory) Close() error { return nil }

type frameRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Session    string `gorm:"index;size:36;not null"`
	Seq        uint64 `gorm:"not null"`
	Action     string `gorm:"size:64"`
	Data       []byte
	ReceivedAt time.Time
}

func (frameRecord) TableName() string { return "journal_frames" }

// Postgres stores frames in a journal_frames table, one session per process.
type Postgres struct {
	db      *gorm.DB
	session string
	log     *zap.Logger
}

func OpenPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&frameRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	p := &Postgres{db: db, session: uuid.NewString(), log: log.Named("journal")}
	p.log.Info("journal opened", zap.String("session", p.session))
	return p, nil
}

func (p *Postgres) Session() string { return p.session }

func (p *Postgres) Record(ctx context.Context, f Frame) error {
	rec := frameRecord{
		Session:    p.session,
		Seq:        f.Seq,
		Action:     f.Action,
		Data:       f.Data,
		ReceivedAt: f.ReceivedAt,
	}
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record frame %d: %w", f.Seq, err)
	}
	return nil
}

// Frames returns this session's frames in arrival order.
func (p *Postgres) Frames(ctx context.Context) ([]Frame, error) {
	return p.SessionFrames(ctx, p.session)
}

func (p *Postgres) SessionFrames(ctx context.Context, session string) ([]Frame, error) {
	var recs []frameRecord
	err := p.db.WithContext(ctx).
		Where("session = ?", session).
		Order("seq asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}

	frames := make([]Frame, 0, len(recs))
	for _, r := range recs {
		frames = append(frames, Frame{Seq: r.Seq, Action: r.Action, Data: r.Data, ReceivedAt: r.ReceivedAt})
	}
	return frames, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
