package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"

	"github.com/google/uuid"
)

const (
	aliceID = "11111111-1111-4111-8111-111111111111"
	bobID   = "22222222-2222-4222-8222-222222222222"
	carolID = "33333333-3333-4333-8333-333333333333"
)

var (
	alice = domain.Identity{ID: aliceID, DisplayName: "alice", Avatar: "a.png"}
	bob   = domain.Identity{ID: bobID, DisplayName: "bob"}
	carol = domain.Identity{ID: carolID, DisplayName: "carol"}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// recHandle records every frame pushed to it.
type recHandle struct {
	id       string
	identity domain.Identity
	sendErr  error

	mu     sync.Mutex
	frames []frame
}

func newHandle(id string, who domain.Identity) *recHandle {
	return &recHandle{id: id, identity: who}
}

func (h *recHandle) ID() string                { return h.id }
func (h *recHandle) UserID() string            { return h.identity.ID }
func (h *recHandle) Identity() domain.Identity { return h.identity }
func (h *recHandle) Close()                    {}

func (h *recHandle) Send(ctx context.Context, data []byte) error {
	if h.sendErr != nil {
		return h.sendErr
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()
	return nil
}

func (h *recHandle) events(name string) []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []json.RawMessage
	for _, f := range h.frames {
		if f.Event == name {
			out = append(out, f.Data)
		}
	}
	return out
}

func (h *recHandle) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	online map[string]bool
	getErr error
	// onStatus runs after every status write, outside the lock.
	onStatus func(id string, online bool)
}

func newUserRepo(ids ...domain.Identity) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*domain.User{}, online: map[string]bool{}}
	for _, id := range ids {
		r.users[id.ID] = &domain.User{ID: id.ID, Email: id.DisplayName + "@example.com", Username: id.DisplayName, Avatar: id.Avatar}
	}
	return r
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.CreatedAt = time.Now()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) UpdateOnlineStatus(ctx context.Context, id string, online bool) error {
	r.mu.Lock()
	r.online[id] = online
	hook := r.onStatus
	r.mu.Unlock()
	if hook != nil {
		hook(id, online)
	}
	return nil
}

func (r *fakeUserRepo) isOnline(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[id]
}

func (r *fakeUserRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		if u.ID != excludeID && strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeUserRepo) GetUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu         sync.Mutex
	msgs       []domain.Message
	createErr  error
	setReadErr error
	lastLimit  int
	lastPage   int
}

func (r *fakeMessageRepo) CreateMessage(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt
	r.msgs = append(r.msgs, *m)
	return nil
}

func (r *fakeMessageRepo) SetRead(ctx context.Context, messageID, readerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setReadErr != nil {
		return false, r.setReadErr
	}
	for i := range r.msgs {
		m := &r.msgs[i]
		if m.ID == messageID && m.ReceiverID == readerID && !m.IsRead && !m.IsDeleted {
			m.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) GetConversation(ctx context.Context, a, b string, page, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPage, r.lastLimit = page, limit
	var out []domain.Message
	for _, m := range r.msgs {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.ReceiverID == userID && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	return nil, nil
}

func (r *fakeMessageRepo) SoftDelete(ctx context.Context, messageID, senderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.msgs {
		if r.msgs[i].ID == messageID && r.msgs[i].SenderID == senderID {
			r.msgs[i].IsDeleted = true
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) stored() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.msgs...)
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeTokens map[string]string

func (f fakeTokens) ValidateToken(tok string) (string, error) {
	if id, ok := f[tok]; ok {
		return id, nil
	}
	return "", ErrInvalidToken
}

type fakePresenceStore struct {
	mu      sync.Mutex
	entries map[string]string
	remote  []string
	onClear func()
}

func newPresenceStore() *fakePresenceStore {
	return &fakePresenceStore{entries: map[string]string{}}
}

func (s *fakePresenceStore) SetOnline(ctx context.Context, userID, connID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = connID
	return nil
}

func (s *fakePresenceStore) ClearIfOwner(ctx context.Context, userID, connID string) error {
	s.mu.Lock()
	if s.entries[userID] == connID {
		delete(s.entries, userID)
	}
	hook := s.onClear
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (s *fakePresenceStore) Refresh(ctx context.Context, owners map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, connID := range owners {
		s.entries[userID] = connID
	}
	return nil
}

func (s *fakePresenceStore) OnlineUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.remote...)
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakePresenceStore) get(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[userID]
	return v, ok
}

type fakePublisher struct {
	messages chan contracts.MessageEvent
	users    chan contracts.UserEvent
	err      error
}

func newPublisher() *fakePublisher {
	return &fakePublisher{
		messages: make(chan contracts.MessageEvent, 16),
		users:    make(chan contracts.UserEvent, 16),
	}
}

func (p *fakePublisher) PublishMessage(ctx context.Context, ev contracts.MessageEvent) error {
	p.messages <- ev
	return p.err
}

func (p *fakePublisher) PublishUserEvent(ctx context.Context, ev contracts.UserEvent) error {
	p.users <- ev
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

var errBoom = errors.New("boom")
