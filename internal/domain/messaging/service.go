package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/integrations/braze"
	"github.com/carebenefits/platform/internal/integrations/zendesk"
	"github.com/carebenefits/platform/internal/platform/auth"
	"github.com/carebenefits/platform/internal/platform/jobs"
	"github.com/carebenefits/platform/internal/platform/websocket"
)

// Directory resolves users for channel naming and routing.
type Directory interface {
	GetMember(ctx context.Context, id uuid.UUID) (*member.Member, error)
}

// Ticketing opens and appends to support tickets for care advocate threads.
type Ticketing interface {
	CreateTicket(ctx context.Context, t zendesk.Ticket) (int64, error)
	AddComment(ctx context.Context, ticketID int64, body string, public bool) (int64, error)
}

type Service struct {
	channels  ChannelRepository
	messages  MessageRepository
	directory Directory
	publisher websocket.Publisher
	queue     jobs.Queue
	tickets   Ticketing
	logger    zerolog.Logger
}

// NewService wires messaging. tickets may be nil when Zendesk is not
// configured; advocate messages are then not mirrored.
func NewService(channels ChannelRepository, messages MessageRepository, directory Directory,
	publisher websocket.Publisher, queue jobs.Queue, tickets Ticketing, logger zerolog.Logger) *Service {
	return &Service{
		channels:  channels,
		messages:  messages,
		directory: directory,
		publisher: publisher,
		queue:     queue,
		tickets:   tickets,
		logger:    logger,
	}
}

func (s *Service) requireParticipant(ctx context.Context, channelID, userID uuid.UUID) ([]*Participant, *Participant, error) {
	if _, err := s.channels.GetByID(ctx, channelID); err != nil {
		return nil, nil, err
	}
	ps, err := s.channels.Participants(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	me := participantOf(ps, userID)
	if me == nil {
		return nil, nil, ErrNotParticipant
	}
	return ps, me, nil
}

// OpenChannel returns the existing two-party channel between the caller and
// otherID, creating it when absent.
func (s *Service) OpenChannel(ctx context.Context, callerID, otherID uuid.UUID) (*Channel, bool, error) {
	if otherID == uuid.Nil {
		return nil, false, invalid("participant_user_id is required")
	}
	if otherID == callerID {
		return nil, false, invalid("cannot open a channel with yourself")
	}

	existing, err := s.channels.FindTwoParty(ctx, callerID, otherID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	other, err := s.directory.GetMember(ctx, otherID)
	if errors.Is(err, member.ErrNotFound) {
		return nil, false, invalid("participant %s does not exist", otherID)
	}
	if err != nil {
		return nil, false, err
	}

	ch := &Channel{Name: other.FullName()}
	participants := []*Participant{
		{UserID: callerID, IsInitiator: true, MaxChars: DefaultMaxChars},
		{UserID: otherID, MaxChars: DefaultMaxChars},
	}
	if err := s.channels.Create(ctx, ch, participants); err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

func (s *Service) ListChannels(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChannelSummary, int, error) {
	return s.channels.ListForUser(ctx, userID, limit, offset)
}

func (s *Service) ListMessages(ctx context.Context, userID, channelID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	if _, _, err := s.requireParticipant(ctx, channelID, userID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListByChannel(ctx, channelID, limit, offset)
}

// SendMessage stores body and fans out notifications to the other
// participants. Notification failures are logged, never returned.
func (s *Service) SendMessage(ctx context.Context, userID, channelID uuid.UUID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body is required")
	}

	ps, me, err := s.requireParticipant(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	limit := me.MaxChars
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	if n := utf8.RuneCountInString(body); n > limit {
		return nil, invalid("body exceeds %d characters", limit)
	}

	msg := &Message{ChannelID: channelID, UserID: userID, Body: body}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	for _, p := range ps {
		if p.UserID == userID {
			continue
		}
		s.notify(ctx, msg, p.UserID)
	}
	return msg, nil
}

func (s *Service) notify(ctx context.Context, msg *Message, recipientID uuid.UUID) {
	log := s.logger.With().Str("message_id", msg.ID.String()).Str("recipient_id", recipientID.String()).Logger()

	evt, err := websocket.NewEvent(websocket.EventMessageCreated, websocket.UserTopic(recipientID), msg)
	if err == nil {
		err = s.publisher.Publish(ctx, evt)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to publish message event")
	}

	if err := braze.Enqueue(ctx, s.queue, recipientID.String(), EventMessageReceived, map[string]any{
		"channel_id": msg.ChannelID.String(),
		"message_id": msg.ID.String(),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to enqueue braze event")
	}

	if s.tickets == nil {
		return
	}
	recipient, err := s.directory.GetMember(ctx, recipientID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load recipient")
		return
	}
	if recipient.Role != auth.RoleCareAdvocate {
		return
	}
	if err := s.queue.Enqueue(ctx, JobMessageTicket, messageTicketPayload{MessageID: msg.ID, RecipientID: recipientID}); err != nil {
		log.Warn().Err(err).Msg("failed to enqueue zendesk ticket job")
	}
}

// Acknowledge records that userID read messageID.
func (s *Service) Acknowledge(ctx context.Context, userID, messageID uuid.UUID) (*MessageRead, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireParticipant(ctx, msg.ChannelID, userID); err != nil {
		return nil, err
	}
	read, err := s.messages.MarkRead(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	if msg.UserID != userID {
		evt, err := websocket.NewEvent(websocket.EventMessageRead, websocket.UserTopic(msg.UserID), read)
		if err == nil {
			err = s.publisher.Publish(ctx, evt)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID.String()).Msg("failed to publish read event")
		}
	}
	return read, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.messages.UnreadCount(ctx, userID)
}

// MirrorToZendesk posts the message to the channel's ticket, opening one on
// the first advocate message.
func (s *Service) MirrorToZendesk(ctx context.Context, messageID uuid.UUID) error {
	if s.tickets == nil {
		return fmt.Errorf("zendesk is not configured")
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	ch, err := s.channels.GetByID(ctx, msg.ChannelID)
	if err != nil {
		return err
	}
	if msg.ZendeskCommentID != nil {
		if ch.ZendeskTicketID == nil {
			// The message opened the ticket but the channel update was lost.
			return s.channels.SetZendeskTicketID(ctx, ch.ID, *msg.ZendeskCommentID)
		}
		return nil
	}

	if ch.ZendeskTicketID != nil {
		commentID, err := s.tickets.AddComment(ctx, *ch.ZendeskTicketID, msg.Body, true)
		if err != nil {
			return fmt.Errorf("add zendesk comment: %w", err)
		}
		return s.messages.SetZendeskCommentID(ctx, msg.ID, commentID)
	}

	sender, err := s.directory.GetMember(ctx, msg.UserID)
	if err != nil {
		return err
	}
	ticketID, err := s.tickets.CreateTicket(ctx, zendesk.Ticket{
		Subject:     "Message from " + sender.FullName(),
		Body:        msg.Body,
		RequesterID: sender.ZendeskUserID,
		ExternalID:  ch.ID.String(),
		Tags:        []string{"care_advocate", "platform_message"},
	})
	if err != nil {
		return fmt.Errorf("create zendesk ticket: %w", err)
	}
	// Mark the message before the channel so a retry never opens a second
	// ticket for it.
	if err := s.messages.SetZendeskCommentID(ctx, msg.ID, ticketID); err != nil {
		return err
	}
	if err := s.channels.SetZendeskTicketID(ctx, ch.ID, ticketID); err != nil {
		return err
	}
	s.logger.Info().
		Str("channel_id", ch.ID.String()).
		Int64("zendesk_ticket_id", ticketID).
		Msg("zendesk ticket opened")
	return nil
}

// MessageTicketJob handles JobMessageTicket.
func (s *Service) MessageTicketJob() jobs.HandlerFunc {
	return func(ctx context.Context, job jobs.Job) error {
		var p messageTicketPayload
		if err := job.Decode(&p); err != nil {
			return err
		}
		return s.MirrorToZendesk(ctx, p.MessageID)
	}
}
