package messaging

import (
	"context"

	"github.com/google/uuid"
)

type ChannelRepository interface {
	Create(ctx context.Context, ch *Channel, participants []*Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Channel, error)
	FindTwoParty(ctx context.Context, a, b uuid.UUID) (*Channel, error)
	Participants(ctx context.Context, channelID uuid.UUID) ([]*Participant, error)
	// ListForUser orders by latest activity, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChannelSummary, int, error)
	SetZendeskTicketID(ctx context.Context, channelID uuid.UUID, ticketID int64) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	ListByChannel(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]*Message, int, error)
	// MarkRead is a no-op when the read already exists.
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) (*MessageRead, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	SetZendeskCommentID(ctx context.Context, messageID uuid.UUID, commentID int64) error
}
