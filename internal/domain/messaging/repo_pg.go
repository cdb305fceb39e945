package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

// =========== Channel Repository ===========

type channelRepoPG struct{ pool *pgxpool.Pool }

func NewChannelRepoPG(pool *pgxpool.Pool) ChannelRepository { return &channelRepoPG{pool: pool} }

const channelCols = `c.id, c.name, c.internal, c.zendesk_ticket_id, c.created_at`

func scanChannel(row pgx.Row) (*Channel, error) {
	var ch Channel
	err := row.Scan(&ch.ID, &ch.Name, &ch.Internal, &ch.ZendeskTicketID, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepoPG) Create(ctx context.Context, ch *Channel, participants []*Participant) error {
	ch.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := db.Executor(ctx, r.pool)
		if err := q.QueryRow(ctx,
			`INSERT INTO channel (id, name, internal) VALUES ($1, $2, $3) RETURNING created_at`,
			ch.ID, ch.Name, ch.Internal).Scan(&ch.CreatedAt); err != nil {
			return err
		}
		for _, p := range participants {
			p.ChannelID = ch.ID
			if _, err := q.Exec(ctx, `
				INSERT INTO channel_participant (channel_id, user_id, is_initiator, is_anonymous, max_chars)
				VALUES ($1, $2, $3, $4, $5)`,
				p.ChannelID, p.UserID, p.IsInitiator, p.IsAnonymous, p.MaxChars); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *channelRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Channel, error) {
	return scanChannel(db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT `+channelCols+` FROM channel c WHERE c.id = $1`, id))
}

func (r *channelRepoPG) FindTwoParty(ctx context.Context, a, b uuid.UUID) (*Channel, error) {
	return scanChannel(db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+channelCols+` FROM channel c
		WHERE NOT c.internal
			AND (SELECT COUNT(*) FROM channel_participant p WHERE p.channel_id = c.id) = 2
			AND EXISTS (SELECT 1 FROM channel_participant p WHERE p.channel_id = c.id AND p.user_id = $1)
			AND EXISTS (SELECT 1 FROM channel_participant p WHERE p.channel_id = c.id AND p.user_id = $2)
		ORDER BY c.created_at
		LIMIT 1`, a, b))
}

func (r *channelRepoPG) Participants(ctx context.Context, channelID uuid.UUID) ([]*Participant, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT channel_id, user_id, is_initiator, is_anonymous, max_chars
		FROM channel_participant WHERE channel_id = $1 ORDER BY is_initiator DESC, user_id`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ChannelID, &p.UserID, &p.IsInitiator, &p.IsAnonymous, &p.MaxChars); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *channelRepoPG) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChannelSummary, int, error) {
	q := db.Executor(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM channel_participant WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+channelCols+`,
			lm.id, lm.user_id, lm.body, lm.created_at,
			(SELECT COUNT(*) FROM message m
				WHERE m.channel_id = c.id AND m.user_id <> $1
				AND NOT EXISTS (SELECT 1 FROM message_read mr WHERE mr.message_id = m.id AND mr.user_id = $1))
		FROM channel c
		JOIN channel_participant cp ON cp.channel_id = c.id AND cp.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, user_id, body, created_at FROM message
			WHERE channel_id = c.id ORDER BY created_at DESC LIMIT 1
		) lm ON TRUE
		ORDER BY COALESCE(lm.created_at, c.created_at) DESC, c.id
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ChannelSummary
	for rows.Next() {
		var (
			ch        Channel
			lmID      *uuid.UUID
			lmUser    *uuid.UUID
			lmBody    *string
			lmCreated *time.Time
			s         ChannelSummary
		)
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Internal, &ch.ZendeskTicketID, &ch.CreatedAt,
			&lmID, &lmUser, &lmBody, &lmCreated, &s.UnreadCount); err != nil {
			return nil, 0, err
		}
		s.Channel = &ch
		if lmID != nil {
			s.LastMessage = &Message{ID: *lmID, ChannelID: ch.ID, UserID: *lmUser, Body: *lmBody, CreatedAt: *lmCreated}
		}
		items = append(items, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	for _, s := range items {
		ps, err := r.Participants(ctx, s.Channel.ID)
		if err != nil {
			return nil, 0, err
		}
		s.Participants = ps
	}
	return items, total, nil
}

func (r *channelRepoPG) SetZendeskTicketID(ctx context.Context, channelID uuid.UUID, ticketID int64) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `UPDATE channel SET zendesk_ticket_id = $2 WHERE id = $1`, channelID, ticketID)
	return err
}

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository { return &messageRepoPG{pool: pool} }

const messageCols = `id, channel_id, user_id, body, zendesk_comment_id, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Body, &m.ZendeskCommentID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return db.Executor(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO message (id, channel_id, user_id, body) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		m.ID, m.ChannelID, m.UserID, m.Body).Scan(&m.CreatedAt)
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	return scanMessage(db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT `+messageCols+` FROM message WHERE id = $1`, id))
}

func (r *messageRepoPG) ListByChannel(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	q := db.Executor(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM message WHERE channel_id = $1`, channelID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+messageCols+` FROM message WHERE channel_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, channelID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, messageID, userID uuid.UUID) (*MessageRead, error) {
	mr := MessageRead{MessageID: messageID, UserID: userID}
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO message_read (message_id, user_id) VALUES ($1, $2)
			ON CONFLICT (message_id, user_id) DO NOTHING
			RETURNING read_at
		)
		SELECT read_at FROM ins
		UNION ALL
		SELECT read_at FROM message_read WHERE message_id = $1 AND user_id = $2
		LIMIT 1`, messageID, userID).Scan(&mr.ReadAt)
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

func (r *messageRepoPG) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM message m
		JOIN channel_participant cp ON cp.channel_id = m.channel_id AND cp.user_id = $1
		WHERE m.user_id <> $1
			AND NOT EXISTS (SELECT 1 FROM message_read mr WHERE mr.message_id = m.id AND mr.user_id = $1)`,
		userID).Scan(&n)
	return n, err
}

func (r *messageRepoPG) SetZendeskCommentID(ctx context.Context, messageID uuid.UUID, commentID int64) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `UPDATE message SET zendesk_comment_id = $2 WHERE id = $1`, messageID, commentID)
	return err
}
