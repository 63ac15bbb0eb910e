package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/platform/metrics"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type IManagerService interface {
	// Authenticate resolves a bearer token to the identity a connection
	// binds to. Every failure is ErrUnauthenticated.
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
	// HandleConnect registers presence and announces the user online.
	HandleConnect(ctx context.Context, h contracts.Handle)
	// HandleDisconnect releases the connection. Offline is announced only
	// when h was still the user's current connection.
	HandleDisconnect(ctx context.Context, h contracts.Handle)
	SendMessage(ctx context.Context, h contracts.Handle, req domain.SendMessageRequest) (*domain.Message, error)
	MarkRead(ctx context.Context, h contracts.Handle, req domain.MarkReadRequest) error
	TypingStart(ctx context.Context, h contracts.Handle, req domain.TypingRequest) error
	TypingStop(ctx context.Context, h contracts.Handle, req domain.TypingRequest) error
	JoinRoom(ctx context.Context, h contracts.Handle, req domain.RoomRequest) error
	LeaveRoom(ctx context.Context, h contracts.Handle, req domain.RoomRequest) error
	OnlineUserIDs(ctx context.Context) []string
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	ValidateToken(token string) (string, error)
}

var tracer = otel.Tracer("manager-service")

type ManagerService struct {
	log         *slog.Logger
	directory   contracts.Directory
	users       domain.UserRepository
	tokens      TokenVerifier
	message     IMessageService
	presence    *PresenceService
	typing      *TypingTracker
	presStore   contracts.PresenceStore
	events      contracts.EventPublisher
	presenceTTL time.Duration
}

// NewManagerService wires the lifecycle. presStore and events may be nil.
func NewManagerService(
	log *slog.Logger,
	directory contracts.Directory,
	users domain.UserRepository,
	tokens TokenVerifier,
	message IMessageService,
	presence *PresenceService,
	typingTTL time.Duration,
	presStore contracts.PresenceStore,
	events contracts.EventPublisher,
	presenceTTL time.Duration,
) *ManagerService {
	m := &ManagerService{
		log:         log,
		directory:   directory,
		users:       users,
		tokens:      tokens,
		message:     message,
		presence:    presence,
		presStore:   presStore,
		events:      events,
		presenceTTL: presenceTTL,
	}
	m.typing = NewTypingTracker(typingTTL, func(from, to string) {
		log.Debug("manager - typing - indicator expired", logging.User(from), logging.Receiver(to))
		presence.TypingStop(context.Background(), from, to)
	})
	return m
}

func (m *ManagerService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "ManagerService.Authenticate")
	defer span.End()
	userID, err := m.tokens.ValidateToken(token)
	if err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("token").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		m.log.InfoContext(ctx, "manager - authenticate - invalid token", logging.Err(err))
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	span.SetAttributes(attribute.String("user_id", userID))
	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		reason := "lookup"
		if errors.Is(err, domain.ErrUserNotFound) {
			reason = "unknown_user"
		}
		metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		m.log.InfoContext(ctx, "manager - authenticate - resolve user failed", logging.User(userID), logging.Err(err))
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	return user.Identity(), nil
}

func (m *ManagerService) HandleConnect(ctx context.Context, h contracts.Handle) {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", h.UserID()),
		attribute.String("conn_id", h.ID()),
	))
	defer span.End()
	m.directory.Register(h.UserID(), h)
	metrics.ConnectionsActive.Inc()
	m.log.InfoContext(ctx, "manager - handle connect - presence registered", logging.User(h.UserID()), logging.Conn(h.ID()))

	if m.presStore != nil {
		if err := m.presStore.SetOnline(ctx, h.UserID(), h.ID(), m.presenceTTL); err != nil {
			span.RecordError(err)
			m.log.WarnContext(ctx, "manager - handle connect - presence mirror failed", logging.User(h.UserID()), logging.Err(err))
		}
	}
	if err := m.users.UpdateOnlineStatus(ctx, h.UserID(), true); err != nil {
		span.RecordError(err)
		m.log.WarnContext(ctx, "manager - handle connect - update online status failed", logging.User(h.UserID()), logging.Err(err))
	}
	m.publishUserEvent(ctx, h, contracts.UserConnected)
	m.presence.AnnounceOnline(ctx, h.Identity())
	span.SetStatus(codes.Ok, "connected")
}

func (m *ManagerService) HandleDisconnect(ctx context.Context, h contracts.Handle) {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleDisconnect", trace.WithAttributes(
		attribute.String("user_id", h.UserID()),
		attribute.String("conn_id", h.ID()),
	))
	defer span.End()
	metrics.ConnectionsActive.Dec()
	m.directory.LeaveAll(h)
	if !m.directory.Unregister(h.UserID(), h) {
		// A newer connection owns the user's presence and typing state.
		span.SetAttributes(attribute.Bool("superseded", true))
		m.log.InfoContext(ctx, "manager - handle disconnect - superseded connection closed", logging.User(h.UserID()), logging.Conn(h.ID()))
		return
	}
	for _, to := range m.typing.StopAll(h.UserID()) {
		m.presence.TypingStop(ctx, h.UserID(), to)
	}
	if m.presStore != nil {
		if err := m.presStore.ClearIfOwner(ctx, h.UserID(), h.ID()); err != nil {
			span.RecordError(err)
			m.log.WarnContext(ctx, "manager - handle disconnect - presence mirror clear failed", logging.User(h.UserID()), logging.Err(err))
		}
	}
	m.publishUserEvent(ctx, h, contracts.UserDisconnected)
	if m.reconnected(ctx, h) {
		return
	}
	if err := m.users.UpdateOnlineStatus(ctx, h.UserID(), false); err != nil {
		span.RecordError(err)
		m.log.WarnContext(ctx, "manager - handle disconnect - update online status failed", logging.User(h.UserID()), logging.Err(err))
	}
	if m.reconnected(ctx, h) {
		// The newer connection may have written online before our offline landed.
		if err := m.users.UpdateOnlineStatus(ctx, h.UserID(), true); err != nil {
			span.RecordError(err)
			m.log.WarnContext(ctx, "manager - handle disconnect - restore online status failed", logging.User(h.UserID()), logging.Err(err))
		}
		return
	}
	m.presence.AnnounceOffline(ctx, h.UserID())
	m.log.InfoContext(ctx, "manager - handle disconnect - user offline", logging.User(h.UserID()), logging.Conn(h.ID()))
}

// reconnected reports whether another connection registered the user while
// h was being released. The newer connection then owns the online state.
func (m *ManagerService) reconnected(ctx context.Context, h contracts.Handle) bool {
	cur, ok := m.directory.Lookup(h.UserID())
	if !ok || cur == h {
		return false
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("reconnected", true))
	m.log.InfoContext(ctx, "manager - handle disconnect - user reconnected during teardown",
		logging.User(h.UserID()), logging.Conn(h.ID()), slog.String("current_conn", cur.ID()))
	return true
}

func (m *ManagerService) publishUserEvent(ctx context.Context, h contracts.Handle, kind string) {
	if m.events == nil {
		return
	}
	ev := contracts.UserEvent{UserID: h.UserID(), Type: kind, ConnID: h.ID(), Timestamp: time.Now().UTC()}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	go func() {
		defer cancel()
		if err := m.events.PublishUserEvent(pubCtx, ev); err != nil {
			m.log.WarnContext(pubCtx, "manager - publish - user event failed", logging.User(ev.UserID), logging.Err(err))
		}
	}()
}

func (m *ManagerService) SendMessage(ctx context.Context, h contracts.Handle, req domain.SendMessageRequest) (*domain.Message, error) {
	return m.message.SendMessage(ctx, h.Identity(), h, req)
}

func (m *ManagerService) MarkRead(ctx context.Context, h contracts.Handle, req domain.MarkReadRequest) error {
	return m.message.MarkRead(ctx, h.UserID(), req)
}

func (m *ManagerService) TypingStart(ctx context.Context, h contracts.Handle, req domain.TypingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	m.typing.Start(h.UserID(), req.ReceiverID)
	m.presence.TypingStart(ctx, h.Identity(), req.ReceiverID)
	return nil
}

func (m *ManagerService) TypingStop(ctx context.Context, h contracts.Handle, req domain.TypingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	m.typing.Stop(h.UserID(), req.ReceiverID)
	m.presence.TypingStop(ctx, h.UserID(), req.ReceiverID)
	return nil
}

func (m *ManagerService) JoinRoom(ctx context.Context, h contracts.Handle, req domain.RoomRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	m.directory.JoinRoom(req.RoomID, h)
	m.log.DebugContext(ctx, "manager - join room - joined", logging.Conn(h.ID()), logging.Room(req.RoomID))
	return nil
}

func (m *ManagerService) LeaveRoom(ctx context.Context, h contracts.Handle, req domain.RoomRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	m.directory.LeaveRoom(req.RoomID, h)
	m.log.DebugContext(ctx, "manager - leave room - left", logging.Conn(h.ID()), logging.Room(req.RoomID))
	return nil
}

// OnlineUserIDs merges local presence with the shared mirror, which also
// holds users connected to other processes.
func (m *ManagerService) OnlineUserIDs(ctx context.Context) []string {
	ids := m.directory.ListAll()
	if m.presStore == nil {
		return ids
	}
	remote, err := m.presStore.OnlineUsers(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "manager - online users - presence mirror read failed", logging.Err(err))
		return ids
	}
	seen := make(map[string]struct{}, len(ids)+len(remote))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range remote {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
