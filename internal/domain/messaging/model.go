package messaging

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxChars = 4096

// Job types owned by messaging.
const JobMessageTicket = "zendesk.message_ticket"

// Braze event sent to message recipients.
const EventMessageReceived = "message_received"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("user is not a participant of this channel")
)

type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type Channel struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Internal        bool      `db:"internal" json:"internal"`
	ZendeskTicketID *int64    `db:"zendesk_ticket_id" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type Participant struct {
	ChannelID   uuid.UUID `db:"channel_id" json:"channel_id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	IsInitiator bool      `db:"is_initiator" json:"is_initiator"`
	IsAnonymous bool      `db:"is_anonymous" json:"is_anonymous"`
	MaxChars    int       `db:"max_chars" json:"max_chars"`
}

type Message struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ChannelID        uuid.UUID `db:"channel_id" json:"channel_id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	Body             string    `db:"body" json:"body"`
	// ZendeskCommentID holds the ticket id for the message that opened it.
	ZendeskCommentID *int64    `db:"zendesk_comment_id" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type MessageRead struct {
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}

type ChannelSummary struct {
	Channel      *Channel       `json:"channel"`
	Participants []*Participant `json:"participants"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCount  int            `json:"unread_count"`
}

func participantOf(ps []*Participant, userID uuid.UUID) *Participant {
	for _, p := range ps {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// messageTicketPayload is the job body for JobMessageTicket.
type messageTicketPayload struct {
	MessageID   uuid.UUID `json:"message_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
}
