package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/pkg/logging"
)

// PresenceHeartbeat keeps the shared presence mirror alive for every user
// connected to this process. Keys of a crashed process expire on their own.
type PresenceHeartbeat struct {
	log       *slog.Logger
	directory contracts.Directory
	store     contracts.PresenceStore
	interval  time.Duration
	ttl       time.Duration
}

func NewPresenceHeartbeat(
	log *slog.Logger,
	directory contracts.Directory,
	store contracts.PresenceStore,
	interval time.Duration,
	ttl time.Duration,
) contracts.BackgroundWorker {
	return &PresenceHeartbeat{
		log:       log,
		directory: directory,
		store:     store,
		interval:  interval,
		ttl:       ttl,
	}
}

// Run refreshes until ctx ends.
func (w *PresenceHeartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.InfoContext(ctx, "worker - presence heartbeat - started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.InfoContext(ctx, "worker - presence heartbeat - stopped")
			return nil
		case <-ticker.C:
			w.beat(ctx)
		}
	}
}

func (w *PresenceHeartbeat) beat(ctx context.Context) {
	handles := w.directory.Snapshot()
	if len(handles) == 0 {
		return
	}
	owners := make(map[string]string, len(handles))
	for _, h := range handles {
		owners[h.UserID()] = h.ID()
	}
	if err := w.store.Refresh(ctx, owners, w.ttl); err != nil {
		w.log.WarnContext(ctx, "worker - presence heartbeat - refresh failed", slog.Int("users", len(owners)), logging.Err(err))
		return
	}
	w.log.DebugContext(ctx, "worker - presence heartbeat - refresh success", slog.Int("users", len(owners)))
}
