package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/internal/platform/metrics"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State of a Session. Transitions only go forward.
type State int32

const (
	StatePending State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

var sessionTracer = otel.Tracer("ws-session")

// Session is one live connection: it binds an identity, decodes inbound
// frames in arrival order and owns the only writer goroutine.
type Session struct {
	id      string
	ws      *WebSocket
	manager services.IManagerService
	opts    Options
	log     *slog.Logger

	state           atomic.Int32
	identity        domain.Identity
	authenticatedAt time.Time

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

var _ contracts.Handle = (*Session)(nil)

func NewSession(id string, ws *WebSocket, manager services.IManagerService, opts Options, log *slog.Logger) *Session {
	opts = opts.withDefaults()
	return &Session{
		id:      id,
		ws:      ws,
		manager: manager,
		opts:    opts,
		log:     log.With(logging.Conn(id)),
		out:     make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// UserID is empty until the session is authenticated.
func (s *Session) UserID() string { return s.identity.ID }

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) AuthenticatedAt() time.Time { return s.authenticatedAt }

// Send queues data for the writer. It fails once the session is closed and
// gives up when ctx ends before the queue has room.
func (s *Session) Send(ctx context.Context, data []byte) error {
	select {
	case <-s.done:
		return domain.ErrConnectionClosed
	default:
	}
	select {
	case s.out <- data:
		return nil
	case <-s.done:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the transport down. The read loop then exits and runs the
// disconnect path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		s.ws.Close()
	})
}

// Shutdown closes the connection with a going away frame.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		s.ws.CloseWith(websocket.CloseGoingAway, "server shutdown")
	})
}

func (s *Session) reject(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		s.ws.CloseWith(websocket.ClosePolicyViolation, reason)
	})
}

// Run drives the session to completion: authenticate, register, read until
// the transport closes, then release. It returns the authentication error
// when the handshake fails.
func (s *Session) Run(ctx context.Context, token string) error {
	authCtx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	identity, err := s.manager.Authenticate(authCtx, token)
	cancel()
	if err != nil {
		s.log.InfoContext(ctx, "ws session - authenticate - rejected", logging.Err(err))
		s.reject("Unauthorized")
		return err
	}
	s.identity = identity
	s.authenticatedAt = time.Now()
	if !s.state.CompareAndSwap(int32(StatePending), int32(StateAuthenticated)) {
		// Closed while authenticating.
		return domain.ErrConnectionClosed
	}
	s.log = s.log.With(logging.User(identity.ID))

	s.writerWG.Add(1)
	go s.writeLoop()

	s.manager.HandleConnect(ctx, s)
	s.log.InfoContext(ctx, "ws session - connect - authenticated")

	err = s.ws.ReadLoop(func(data []byte) {
		s.dispatch(ctx, data)
	})
	if err != nil && IsUnexpectedClose(err) && s.State() != StateClosed {
		s.log.WarnContext(ctx, "ws session - read loop - unexpected close", logging.Err(err))
	}
	s.Close()
	s.writerWG.Wait()
	s.manager.HandleDisconnect(context.WithoutCancel(ctx), s)
	s.log.InfoContext(ctx, "ws session - disconnect - released", slog.Duration("connected_for", time.Since(s.authenticatedAt)))
	return nil
}

func (s *Session) writeLoop() {
	defer s.writerWG.Done()
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case data := <-s.out:
			if err := s.ws.WriteMessage(data); err != nil {
				s.log.Debug("ws session - write loop - write failed", logging.Err(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.ws.WritePing(); err != nil {
				s.Close()
				return
			}
		}
	}
}

// dispatch handles one inbound frame. Frames are processed one at a time
// so a client's sends keep their order.
func (s *Session) dispatch(ctx context.Context, frame []byte) {
	in, err := decodeFrame(frame)
	if err != nil {
		metrics.InboundEventsTotal.WithLabelValues("invalid").Inc()
		s.reply(ctx, in.Ack, domain.ErrorAck(err))
		return
	}
	if s.State() != StateAuthenticated {
		s.reply(ctx, in.Ack, domain.ErrorAck(domain.ErrUnauthorized))
		return
	}
	ctx, span := sessionTracer.Start(ctx, "ws."+in.Event, trace.WithAttributes(
		attribute.String("user_id", s.identity.ID),
		attribute.String("conn_id", s.id),
	), trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	switch in.Event {
	case domain.EventSendMessage:
		metrics.InboundEventsTotal.WithLabelValues(in.Event).Inc()
		req, err := decodeData[domain.SendMessageRequest](in)
		if err != nil {
			s.reply(ctx, in.Ack, domain.ErrorAck(err))
			return
		}
		msg, err := s.manager.SendMessage(ctx, s, req)
		if err != nil {
			span.RecordError(err)
			s.reply(ctx, in.Ack, domain.ErrorAck(err))
			return
		}
		s.reply(ctx, in.Ack, domain.Ack{Success: true, MessageID: msg.ID})

	case domain.EventMarkAsRead:
		metrics.InboundEventsTotal.WithLabelValues(in.Event).Inc()
		s.handle(ctx, in, func(ctx context.Context) error {
			req, err := decodeData[domain.MarkReadRequest](in)
			if err != nil {
				return err
			}
			return s.manager.MarkRead(ctx, s, req)
		})

	case domain.EventTypingStart, domain.EventTypingStop:
		metrics.InboundEventsTotal.WithLabelValues(in.Event).Inc()
		req, err := decodeData[domain.TypingRequest](in)
		if err == nil {
			if in.Event == domain.EventTypingStart {
				err = s.manager.TypingStart(ctx, s, req)
			} else {
				err = s.manager.TypingStop(ctx, s, req)
			}
		}
		// Typing is fire and forget; only failures are answered.
		if err != nil {
			s.reply(ctx, in.Ack, domain.ErrorAck(err))
		}

	case domain.EventJoinRoom, domain.EventLeaveRoom:
		metrics.InboundEventsTotal.WithLabelValues(in.Event).Inc()
		s.handle(ctx, in, func(ctx context.Context) error {
			req, err := decodeData[domain.RoomRequest](in)
			if err != nil {
				return err
			}
			if in.Event == domain.EventJoinRoom {
				return s.manager.JoinRoom(ctx, s, req)
			}
			return s.manager.LeaveRoom(ctx, s, req)
		})

	default:
		metrics.InboundEventsTotal.WithLabelValues("unknown").Inc()
		s.log.DebugContext(ctx, "ws session - dispatch - unknown event", logging.Event(in.Event))
		s.reply(ctx, in.Ack, domain.Ack{Error: "Unknown event: " + in.Event})
	}
}

func (s *Session) handle(ctx context.Context, in inbound, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrInvalidPayload) {
			s.log.WarnContext(ctx, "ws session - dispatch - request failed", logging.Event(in.Event), logging.Err(err))
		}
		s.reply(ctx, in.Ack, domain.ErrorAck(err))
		return
	}
	s.reply(ctx, in.Ack, domain.OK())
}

// reply answers a request that carried an ack id.
func (s *Session) reply(ctx context.Context, id json.RawMessage, ack domain.Ack) {
	if len(id) == 0 {
		return
	}
	frame, err := encodeAck(id, ack)
	if err != nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, s.opts.PushTimeout)
	defer cancel()
	if err := s.Send(pushCtx, frame); err != nil {
		s.log.DebugContext(ctx, "ws session - reply - dropped", logging.Err(err))
	}
}

// TokenFromRequest reads the bearer token from the Authorization header or
// the token query parameter, which browsers have to use.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}
