package postgres

import (
	"context"
	"database/sql"

	"github.com/arefin-aareef/talksy/internal/core/domain"
)

type MessageRepo struct {
	db *sql.DB
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
	}
}

const messageColumns = `id, sender_id, receiver_id, content, message_type, is_read, read_at, is_deleted, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }, m *domain.Message) error {
	var readAt sql.NullTime
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type,
		&m.IsRead, &readAt, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return nil
}

func (r *MessageRepo) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.Type == "" {
		msg.Type = domain.MessageTypeText
	}
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, message_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, msg.SenderID, msg.ReceiverID, msg.Content, msg.Type).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
}

// setReadQuery flips the flag at most once and never on deleted messages.
const setReadQuery = `
		UPDATE messages SET is_read = TRUE, read_at = now(), updated_at = now()
		WHERE id = $1 AND receiver_id = $2 AND NOT is_read AND NOT is_deleted
	`

// SetRead is a single conditional UPDATE so concurrent readers cannot both
// flip the flag.
func (r *MessageRepo) SetRead(ctx context.Context, messageID, readerID string) (bool, error) {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, setReadQuery, messageID, readerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MessageRepo) GetConversation(ctx context.Context, userA, userB string, page, limit int) ([]domain.Message, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE NOT is_deleted
		AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userA, userB, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	exec := GetExecutor(ctx, r.db)
	var n int
	err := exec.QueryRowContext(ctx, `
		SELECT count(*) FROM messages
		WHERE receiver_id = $1 AND NOT is_read AND NOT is_deleted
	`, userID).Scan(&n)
	return n, err
}

// ListConversations returns one row per peer: the latest message of the
// pair and the caller's unread count from that peer, newest first.
func (r *MessageRepo) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (peer_id) *
			FROM (
				SELECT m.*, CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS peer_id
				FROM messages m
				WHERE NOT m.is_deleted AND (m.sender_id = $1 OR m.receiver_id = $1)
			) pairs
			ORDER BY peer_id, created_at DESC
		)
		SELECT l.id, l.sender_id, l.receiver_id, l.content, l.message_type, l.is_read, l.read_at,
		       l.is_deleted, l.created_at, l.updated_at,
		       u.id, u.email, u.username, u.password_hash, u.avatar, u.is_online, u.last_seen, u.created_at,
		       (SELECT count(*) FROM messages x
		        WHERE x.sender_id = l.peer_id AND x.receiver_id = $1 AND NOT x.is_read AND NOT x.is_deleted)
		FROM latest l
		JOIN users u ON u.id = l.peer_id
		ORDER BY l.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	convs := []domain.ConversationSummary{}
	for rows.Next() {
		var (
			c      domain.ConversationSummary
			readAt sql.NullTime
		)
		m, u := &c.LastMessage, &c.Peer
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.IsRead, &readAt,
			&m.IsDeleted, &m.CreatedAt, &m.UpdatedAt,
			&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Avatar, &u.IsOnline, &u.LastSeen, &u.CreatedAt,
			&c.UnreadCount,
		); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, senderID string) (bool, error) {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE messages SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND sender_id = $2 AND NOT is_deleted
	`, messageID, senderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
