package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/platform/metrics"
	"github.com/arefin-aareef/talksy/pkg/logging"
)

// PresenceService fans presence transitions out to every other live
// connection and routes typing indicators point to point.
type PresenceService struct {
	log         *slog.Logger
	directory   contracts.Directory
	pushTimeout time.Duration
}

func NewPresenceService(log *slog.Logger, directory contracts.Directory, pushTimeout time.Duration) *PresenceService {
	return &PresenceService{
		log:         log,
		directory:   directory,
		pushTimeout: pushTimeout,
	}
}

func (p *PresenceService) AnnounceOnline(ctx context.Context, who domain.Identity) {
	p.broadcast(ctx, who.ID, domain.EventUserOnline, domain.UserOnlineEvent{
		UserID:      who.ID,
		DisplayName: who.DisplayName,
		Avatar:      who.Avatar,
	})
}

func (p *PresenceService) AnnounceOffline(ctx context.Context, userID string) {
	p.broadcast(ctx, userID, domain.EventUserOffline, domain.UserOfflineEvent{UserID: userID})
}

// broadcast pushes to a snapshot of the directory minus the actor. A handle
// that closes mid fan-out just misses the event.
func (p *PresenceService) broadcast(ctx context.Context, actorID, event string, data any) {
	frame, err := Frame(event, data)
	if err != nil {
		p.log.ErrorContext(ctx, "presence - broadcast - encode failed", logging.Event(event), logging.Err(err))
		return
	}
	var wg sync.WaitGroup
	for _, h := range p.directory.Snapshot() {
		if h.UserID() == actorID {
			continue
		}
		wg.Add(1)
		go func(h contracts.Handle) {
			defer wg.Done()
			if err := push(ctx, h, p.pushTimeout, frame); err != nil {
				metrics.BroadcastPushesTotal.WithLabelValues(event, metrics.OutcomeFailed).Inc()
				p.log.DebugContext(ctx, "presence - broadcast - push failed", logging.Event(event), logging.Conn(h.ID()), logging.Err(err))
				return
			}
			metrics.BroadcastPushesTotal.WithLabelValues(event, metrics.OutcomeDelivered).Inc()
		}(h)
	}
	wg.Wait()
}

// TypingStart tells toUserID that from is typing. Dropped when offline.
func (p *PresenceService) TypingStart(ctx context.Context, from domain.Identity, toUserID string) {
	p.direct(ctx, toUserID, domain.EventUserTyping, domain.UserTypingEvent{
		UserID:      from.ID,
		DisplayName: from.DisplayName,
	})
}

func (p *PresenceService) TypingStop(ctx context.Context, fromUserID, toUserID string) {
	p.direct(ctx, toUserID, domain.EventUserStopTyping, domain.UserStopTypingEvent{UserID: fromUserID})
}

func (p *PresenceService) direct(ctx context.Context, toUserID, event string, data any) {
	h, ok := p.directory.Lookup(toUserID)
	if !ok {
		metrics.BroadcastPushesTotal.WithLabelValues(event, metrics.OutcomeOffline).Inc()
		return
	}
	frame, err := Frame(event, data)
	if err != nil {
		return
	}
	if err := push(ctx, h, p.pushTimeout, frame); err != nil {
		metrics.BroadcastPushesTotal.WithLabelValues(event, metrics.OutcomeFailed).Inc()
		p.log.DebugContext(ctx, "presence - direct - push failed", logging.Event(event), logging.Receiver(toUserID), logging.Err(err))
		return
	}
	metrics.BroadcastPushesTotal.WithLabelValues(event, metrics.OutcomeDelivered).Inc()
}
