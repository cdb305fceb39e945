package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/integrations/braze"
	"github.com/carebenefits/platform/internal/integrations/zendesk"
	"github.com/carebenefits/platform/internal/platform/auth"
	"github.com/carebenefits/platform/internal/platform/jobs"
	"github.com/carebenefits/platform/internal/platform/websocket"
)

// -- Mocks --

type mockChannelRepo struct {
	channels     map[uuid.UUID]*Channel
	participants map[uuid.UUID][]*Participant
	ticketErr    error
}

func newMockChannelRepo() *mockChannelRepo {
	return &mockChannelRepo{channels: map[uuid.UUID]*Channel{}, participants: map[uuid.UUID][]*Participant{}}
}

func (m *mockChannelRepo) Create(_ context.Context, ch *Channel, ps []*Participant) error {
	ch.ID = uuid.New()
	ch.CreatedAt = time.Now()
	m.channels[ch.ID] = ch
	for _, p := range ps {
		p.ChannelID = ch.ID
	}
	m.participants[ch.ID] = ps
	return nil
}

func (m *mockChannelRepo) GetByID(_ context.Context, id uuid.UUID) (*Channel, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ch, nil
}

func (m *mockChannelRepo) FindTwoParty(_ context.Context, a, b uuid.UUID) (*Channel, error) {
	for id, ps := range m.participants {
		if len(ps) == 2 && participantOf(ps, a) != nil && participantOf(ps, b) != nil {
			return m.channels[id], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockChannelRepo) Participants(_ context.Context, id uuid.UUID) ([]*Participant, error) {
	return m.participants[id], nil
}

func (m *mockChannelRepo) ListForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*ChannelSummary, int, error) {
	var out []*ChannelSummary
	for id, ps := range m.participants {
		if participantOf(ps, userID) != nil {
			out = append(out, &ChannelSummary{Channel: m.channels[id], Participants: ps})
		}
	}
	return out, len(out), nil
}

func (m *mockChannelRepo) SetZendeskTicketID(_ context.Context, id uuid.UUID, ticketID int64) error {
	if m.ticketErr != nil {
		return m.ticketErr
	}
	m.channels[id].ZendeskTicketID = &ticketID
	return nil
}

type mockMessageRepo struct {
	messages map[uuid.UUID]*Message
	reads    map[[2]uuid.UUID]*MessageRead
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: map[uuid.UUID]*Message{}, reads: map[[2]uuid.UUID]*MessageRead{}}
}

func (m *mockMessageRepo) Create(_ context.Context, msg *Message) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages[msg.ID] = msg
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (m *mockMessageRepo) ListByChannel(_ context.Context, channelID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var out []*Message
	for _, msg := range m.messages {
		if msg.ChannelID == channelID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, messageID, userID uuid.UUID) (*MessageRead, error) {
	key := [2]uuid.UUID{messageID, userID}
	if r, ok := m.reads[key]; ok {
		return r, nil
	}
	r := &MessageRead{MessageID: messageID, UserID: userID, ReadAt: time.Now()}
	m.reads[key] = r
	return r, nil
}

func (m *mockMessageRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, msg := range m.messages {
		if msg.UserID == userID {
			continue
		}
		if _, read := m.reads[[2]uuid.UUID{msg.ID, userID}]; !read {
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepo) SetZendeskCommentID(_ context.Context, id uuid.UUID, commentID int64) error {
	m.messages[id].ZendeskCommentID = &commentID
	return nil
}

type mockDirectory struct {
	members map[uuid.UUID]*member.Member
}

func (d *mockDirectory) GetMember(_ context.Context, id uuid.UUID) (*member.Member, error) {
	m, ok := d.members[id]
	if !ok {
		return nil, member.ErrNotFound
	}
	return m, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fakeTickets struct {
	created  []zendesk.Ticket
	comments []string
}

func (f *fakeTickets) CreateTicket(_ context.Context, t zendesk.Ticket) (int64, error) {
	f.created = append(f.created, t)
	return 500 + int64(len(f.created)), nil
}

func (f *fakeTickets) AddComment(_ context.Context, _ int64, body string, _ bool) (int64, error) {
	f.comments = append(f.comments, body)
	return 900 + int64(len(f.comments)), nil
}

type testEnv struct {
	svc       *Service
	channels  *mockChannelRepo
	messages  *mockMessageRepo
	publisher *recordingPublisher
	queue     *jobs.MemoryQueue
	tickets   *fakeTickets
	memberID  uuid.UUID
	advocate  uuid.UUID
	peer      uuid.UUID
}

func newTestService() *testEnv {
	env := &testEnv{
		channels:  newMockChannelRepo(),
		messages:  newMockMessageRepo(),
		publisher: &recordingPublisher{},
		queue:     jobs.NewMemoryQueue(),
		tickets:   &fakeTickets{},
		memberID:  uuid.New(),
		advocate:  uuid.New(),
		peer:      uuid.New(),
	}
	dir := &mockDirectory{members: map[uuid.UUID]*member.Member{
		env.memberID: {ID: env.memberID, FirstName: "Ada", LastName: "Lovelace", Role: auth.RoleMember},
		env.advocate: {ID: env.advocate, FirstName: "Cam", LastName: "Advocate", Role: auth.RoleCareAdvocate},
		env.peer:     {ID: env.peer, FirstName: "Pat", LastName: "Practitioner", Role: auth.RolePractitioner},
	}}
	env.svc = NewService(env.channels, env.messages, dir, env.publisher, env.queue, env.tickets, zerolog.Nop())
	return env
}

func jobTypes(q *jobs.MemoryQueue) []string {
	var out []string
	for _, j := range q.Pending() {
		out = append(out, j.Type)
	}
	sort.Strings(out)
	return out
}

func TestOpenChannel_ReusesExisting(t *testing.T) {
	env := newTestService()
	ctx := context.Background()

	ch, created, err := env.svc.OpenChannel(ctx, env.memberID, env.peer)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if !created || ch.Name != "Pat Practitioner" {
		t.Errorf("expected new channel named after participant, got %q created=%v", ch.Name, created)
	}

	again, created, err := env.svc.OpenChannel(ctx, env.peer, env.memberID)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if created || again.ID != ch.ID {
		t.Error("expected existing channel to be returned")
	}
}

func TestOpenChannel_Validation(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	if _, _, err := env.svc.OpenChannel(ctx, env.memberID, env.memberID); !IsValidation(err) {
		t.Errorf("expected self-channel rejection, got %v", err)
	}
	if _, _, err := env.svc.OpenChannel(ctx, env.memberID, uuid.New()); !IsValidation(err) {
		t.Errorf("expected unknown participant rejection, got %v", err)
	}
}

func TestSendMessage_NotifiesRecipient(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	ch, _, _ := env.svc.OpenChannel(ctx, env.memberID, env.peer)

	msg, err := env.svc.SendMessage(ctx, env.memberID, ch.ID, "  hello there  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Body != "hello there" {
		t.Errorf("expected trimmed body, got %q", msg.Body)
	}
	if len(env.publisher.events) != 1 || env.publisher.events[0].Topic != websocket.UserTopic(env.peer) {
		t.Errorf("expected one event to the peer, got %+v", env.publisher.events)
	}
	if got := jobTypes(env.queue); len(got) != 1 || got[0] != braze.JobTrackEvent {
		t.Errorf("expected only a braze job for non-advocate recipient, got %v", got)
	}
}

func TestSendMessage_AdvocateEnqueuesTicket(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	ch, _, _ := env.svc.OpenChannel(ctx, env.memberID, env.advocate)

	if _, err := env.svc.SendMessage(ctx, env.memberID, ch.ID, "need help"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := jobTypes(env.queue)
	if len(got) != 2 || got[0] != braze.JobTrackEvent || got[1] != JobMessageTicket {
		t.Errorf("expected braze and zendesk jobs, got %v", got)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	ch, _, _ := env.svc.OpenChannel(ctx, env.memberID, env.peer)

	if _, err := env.svc.SendMessage(ctx, env.memberID, ch.ID, "   "); !IsValidation(err) {
		t.Errorf("expected empty body rejection, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, env.memberID, ch.ID, strings.Repeat("x", DefaultMaxChars+1)); !IsValidation(err) {
		t.Errorf("expected max chars rejection, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, env.advocate, ch.ID, "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, env.memberID, uuid.New(), "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown channel, got %v", err)
	}
}

func TestAcknowledge_Idempotent(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	ch, _, _ := env.svc.OpenChannel(ctx, env.memberID, env.peer)
	msg, _ := env.svc.SendMessage(ctx, env.memberID, ch.ID, "ping")

	if n, _ := env.svc.UnreadCount(ctx, env.peer); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
	first, err := env.svc.Acknowledge(ctx, env.peer, msg.ID)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	second, err := env.svc.Acknowledge(ctx, env.peer, msg.ID)
	if err != nil {
		t.Fatalf("Acknowledge again: %v", err)
	}
	if !first.ReadAt.Equal(second.ReadAt) {
		t.Error("expected second acknowledge to keep original read time")
	}
	if n, _ := env.svc.UnreadCount(ctx, env.peer); n != 0 {
		t.Errorf("expected 0 unread, got %d", n)
	}
	if _, err := env.svc.Acknowledge(ctx, env.advocate, msg.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}

func TestMirrorToZendesk(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	ch, _, _ := env.svc.OpenChannel(ctx, env.memberID, env.advocate)
	env.svc.SendMessage(ctx, env.memberID, ch.ID, "first")
	second, _ := env.svc.SendMessage(ctx, env.memberID, ch.ID, "second")

	d := jobs.NewDispatcher(zerolog.Nop())
	d.Handle(JobMessageTicket, env.svc.MessageTicketJob())
	d.Handle(braze.JobTrackEvent, func(context.Context, jobs.Job) error { return nil })
	env.queue.Drain(ctx, d)

	if len(env.tickets.created) != 1 {
		t.Fatalf("expected one ticket, got %d", len(env.tickets.created))
	}
	if env.tickets.created[0].Body != "first" || env.tickets.created[0].ExternalID != ch.ID.String() {
		t.Errorf("unexpected ticket %+v", env.tickets.created[0])
	}
	if len(env.tickets.comments) != 1 || env.tickets.comments[0] != "second" {
		t.Errorf("expected second message as comment, got %v", env.tickets.comments)
	}
	if env.messages.messages[second.ID].ZendeskCommentID == nil {
		t.Error("expected comment id stored on second message")
	}
}

func TestMirrorToZendesk_RetryAfterChannelUpdateFails(t *testing.T) {
	env := newTestService()
	ctx := context.Background()
	ch, _, _ := env.svc.OpenChannel(ctx, env.memberID, env.advocate)
	first, _ := env.svc.SendMessage(ctx, env.memberID, ch.ID, "first")

	env.channels.ticketErr = errors.New("connection reset")
	if err := env.svc.MirrorToZendesk(ctx, first.ID); err == nil {
		t.Fatal("expected channel update error")
	}
	env.channels.ticketErr = nil
	if err := env.svc.MirrorToZendesk(ctx, first.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}

	if len(env.tickets.created) != 1 {
		t.Fatalf("expected one ticket, got %d", len(env.tickets.created))
	}
	got := env.channels.channels[ch.ID].ZendeskTicketID
	if got == nil || *got != 501 {
		t.Errorf("expected channel linked to ticket 501, got %v", got)
	}

	second, _ := env.svc.SendMessage(ctx, env.memberID, ch.ID, "second")
	if err := env.svc.MirrorToZendesk(ctx, second.ID); err != nil {
		t.Fatalf("mirror second: %v", err)
	}
	if len(env.tickets.created) != 1 || len(env.tickets.comments) != 1 {
		t.Errorf("expected second message as a comment on the same ticket, got %d tickets %d comments",
			len(env.tickets.created), len(env.tickets.comments))
	}
}
