package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/platform/metrics"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
	publishTimeout      = 5 * time.Second
)

var msgTracer = otel.Tracer("message-service")

type IMessageService interface {
	// SendMessage persists the message, then pushes new-message to the
	// receiver's live handle when one exists and message-accepted to origin.
	// origin may be nil for callers without a live connection.
	SendMessage(ctx context.Context, from domain.Identity, origin contracts.Handle, req domain.SendMessageRequest) (*domain.Message, error)
	// MarkRead flips the read flag when readerID is the receiver. Already
	// read or foreign messages are a silent no-op.
	MarkRead(ctx context.Context, readerID string, req domain.MarkReadRequest) error
	History(ctx context.Context, userID, peerID string, page, limit int) ([]domain.Message, error)
	Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, messageID, senderID string) error
}

type MessageService struct {
	log         *slog.Logger
	directory   contracts.Directory
	repo        domain.MessageRepository
	events      contracts.EventPublisher
	pushTimeout time.Duration
}

// NewMessageService wires the router. events may be nil.
func NewMessageService(
	log *slog.Logger,
	directory contracts.Directory,
	repo domain.MessageRepository,
	events contracts.EventPublisher,
	pushTimeout time.Duration,
) *MessageService {
	return &MessageService{
		log:         log,
		directory:   directory,
		repo:        repo,
		events:      events,
		pushTimeout: pushTimeout,
	}
}

func (m *MessageService) SendMessage(
	ctx context.Context,
	from domain.Identity,
	origin contracts.Handle,
	req domain.SendMessageRequest,
) (*domain.Message, error) {
	ctx, span := msgTracer.Start(ctx, "MessageService.SendMessage", trace.WithAttributes(
		attribute.String("sender_id", from.ID),
		attribute.String("receiver_id", req.ReceiverID),
	))
	defer span.End()
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	msg := &domain.Message{
		SenderID:   from.ID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       domain.MessageTypeText,
	}
	// Durability first. Nothing is delivered live before this returns.
	if err := m.repo.CreateMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		m.log.ErrorContext(ctx, "messages - send message - create message failed",
			logging.User(from.ID), logging.Receiver(req.ReceiverID), logging.Err(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrSendFailed, err)
	}
	metrics.MessagesPersistedTotal.Inc()
	m.log.InfoContext(ctx, "messages - send message - create message success",
		logging.Message(msg.ID), logging.User(from.ID), logging.Receiver(msg.ReceiverID))
	m.publish(ctx, msg)

	receiver := domain.PeerRef{ID: msg.ReceiverID}
	if h, ok := m.directory.Lookup(msg.ReceiverID); ok {
		receiver = peerRef(h.Identity())
		m.deliver(ctx, h, msg, from, receiver)
	} else {
		metrics.LiveDeliveriesTotal.WithLabelValues(metrics.OutcomeOffline).Inc()
		m.log.DebugContext(ctx, "messages - send message - receiver offline", logging.Message(msg.ID), logging.Receiver(msg.ReceiverID))
	}

	if origin != nil {
		accepted := domain.MessageAcceptedEvent{
			ID:                  msg.ID,
			Content:             msg.Content,
			Receiver:            receiver,
			CreatedAt:           msg.CreatedAt,
			ClientCorrelationID: req.CorrelationID(),
		}
		if frame, err := Frame(domain.EventMessageAccepted, accepted); err == nil {
			if err := push(ctx, origin, m.pushTimeout, frame); err != nil {
				m.log.WarnContext(ctx, "messages - send message - push accepted failed",
					logging.Message(msg.ID), logging.Conn(origin.ID()), logging.Err(err))
			}
		}
	}
	span.SetStatus(codes.Ok, "sent")
	return msg, nil
}

// deliver pushes new-message to the receiver. Failures are logged only.
func (m *MessageService) deliver(ctx context.Context, h contracts.Handle, msg *domain.Message, from domain.Identity, receiver domain.PeerRef) {
	frame, err := Frame(domain.EventNewMessage, domain.NewMessageEvent{
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    peerRef(from),
		Receiver:  receiver,
		CreatedAt: msg.CreatedAt,
		IsRead:    msg.IsRead,
	})
	if err != nil {
		return
	}
	if err := push(ctx, h, m.pushTimeout, frame); err != nil {
		metrics.LiveDeliveriesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		m.log.WarnContext(ctx, "messages - send message - live delivery failed",
			logging.Message(msg.ID), logging.Conn(h.ID()), logging.Err(err))
		return
	}
	metrics.LiveDeliveriesTotal.WithLabelValues(metrics.OutcomeDelivered).Inc()
}

func (m *MessageService) publish(ctx context.Context, msg *domain.Message) {
	if m.events == nil {
		return
	}
	ev := contracts.MessageEvent{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt,
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	go func() {
		defer cancel()
		if err := m.events.PublishMessage(pubCtx, ev); err != nil {
			m.log.WarnContext(pubCtx, "messages - publish - chat message event failed", logging.Message(ev.MessageID), logging.Err(err))
		}
	}()
}

func (m *MessageService) MarkRead(ctx context.Context, readerID string, req domain.MarkReadRequest) error {
	ctx, span := msgTracer.Start(ctx, "MessageService.MarkRead", trace.WithAttributes(
		attribute.String("reader_id", readerID),
		attribute.String("message_id", req.MessageID),
	))
	defer span.End()
	if err := req.Validate(); err != nil {
		return err
	}
	changed, err := m.repo.SetRead(ctx, req.MessageID, readerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set read failed")
		m.log.ErrorContext(ctx, "messages - mark read - set read failed", logging.Message(req.MessageID), logging.User(readerID), logging.Err(err))
		return fmt.Errorf("%w: %w", domain.ErrMarkReadFailed, err)
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	return nil
}

func (m *MessageService) History(ctx context.Context, userID, peerID string, page, limit int) ([]domain.Message, error) {
	if err := domain.ValidateUserID("userId", peerID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := m.repo.GetConversation(ctx, userID, peerID, page, limit)
	if err != nil {
		m.log.ErrorContext(ctx, "messages - history - get conversation failed", logging.User(userID), logging.Err(err))
		return nil, err
	}
	return msgs, nil
}

func (m *MessageService) Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	convs, err := m.repo.ListConversations(ctx, userID)
	if err != nil {
		m.log.ErrorContext(ctx, "messages - conversations - list failed", logging.User(userID), logging.Err(err))
		return nil, err
	}
	return convs, nil
}

func (m *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return m.repo.UnreadCount(ctx, userID)
}

func (m *MessageService) Delete(ctx context.Context, messageID, senderID string) error {
	if err := uuid.Validate(messageID); err != nil {
		return domain.ErrInvalidMessageID
	}
	ok, err := m.repo.SoftDelete(ctx, messageID, senderID)
	if err != nil {
		m.log.ErrorContext(ctx, "messages - delete - soft delete failed", logging.Message(messageID), logging.Err(err))
		return err
	}
	if !ok {
		return domain.ErrMessageNotFound
	}
	return nil
}

func peerRef(id domain.Identity) domain.PeerRef {
	return domain.PeerRef{ID: id.ID, Username: id.DisplayName, Avatar: id.Avatar}
}
