package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/journal"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/notify"
)

type discardResolver struct{}

func (discardResolver) Resolve(string)       {}
func (discardResolver) Reject(string, error) {}

// Replay rebuilds a mirror offline from recorded frames. The mirror state
// depends only on the frames and the self-refresh setting.
func Replay(frames []journal.Frame, selfRefresh bool, log *zap.Logger) mirror.Snapshot {
	m := mirror.New(log)
	r := newRouter(context.Background(), m, discardResolver{}, notify.Discard{}, log.Named("replay"), WithSelfRefresh(selfRefresh))
	defer r.cancel()

	for _, f := range frames {
		r.safeHandle(f.Data)
	}
	return m.Snapshot()
}
