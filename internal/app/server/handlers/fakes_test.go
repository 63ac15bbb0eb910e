package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/core/services"

	"github.com/google/uuid"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) UpdateOnlineStatus(_ context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsOnline = online
		u.LastSeen = time.Now()
	}
	return nil
}

func (m *memUsers) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUsers) SearchUsers(_ context.Context, query, excludeID string, limit int) ([]domain.User, error) {
	all, _ := m.ListUsers(context.Background())
	var out []domain.User
	for _, u := range all {
		if u.ID != excludeID && strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) GetUsersByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

type memMessages struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (m *memMessages) CreateMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	m.msgs = append(m.msgs, &cp)
	return nil
}

func (m *memMessages) SetRead(_ context.Context, messageID, readerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ID == messageID && msg.ReceiverID == readerID && !msg.IsRead {
			now := time.Now()
			msg.IsRead, msg.ReadAt = true, &now
			return true, nil
		}
	}
	return false, nil
}

func (m *memMessages) GetConversation(_ context.Context, a, b string, page, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for i := len(m.msgs) - 1; i >= 0; i-- {
		msg := m.msgs[i]
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, *msg)
		}
	}
	start := (page - 1) * limit
	if start >= len(out) {
		return []domain.Message{}, nil
	}
	return out[start:min(start+limit, len(out))], nil
}

func (m *memMessages) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs {
		if msg.ReceiverID == userID && !msg.IsRead && !msg.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (m *memMessages) ListConversations(_ context.Context, _ string) ([]domain.ConversationSummary, error) {
	return []domain.ConversationSummary{}, nil
}

func (m *memMessages) SoftDelete(_ context.Context, messageID, senderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ID == messageID && msg.SenderID == senderID && !msg.IsDeleted {
			msg.IsDeleted = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type noTx struct{}

func (noTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// stallingManager never finishes authentication on its own.
type stallingManager struct {
	services.IManagerService
	called chan struct{}
}

func (m *stallingManager) Authenticate(ctx context.Context, _ string) (domain.Identity, error) {
	close(m.called)
	<-ctx.Done()
	return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, ctx.Err())
}
