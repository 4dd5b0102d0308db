package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dllu1/go-chatroom/internal/cache"
	"github.com/dllu1/go-chatroom/internal/config"
	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/hub"
	"github.com/dllu1/go-chatroom/internal/registry"
)

// memMessageRepo is an in-memory MessageRepository.
type memMessageRepo struct {
	mu         sync.Mutex
	messages   []domain.Message
	failCreate bool
	recentHits int
}

func (r *memMessageRepo) Create(ctx context.Context, username, content string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreate {
		return nil, errors.New("store unavailable")
	}
	msg := domain.Message{
		ID:        uint(len(r.messages) + 1),
		Username:  username,
		Content:   content,
		Timestamp: time.Now(),
	}
	r.messages = append(r.messages, msg)
	return &msg, nil
}

func (r *memMessageRepo) Recent(ctx context.Context, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recentHits++
	start := len(r.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Message, len(r.messages)-start)
	copy(out, r.messages[start:])
	return out, nil
}

func (r *memMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type chatFixture struct {
	reg  *registry.Registry
	hub  *hub.Hub
	repo *memMessageRepo
	svc  ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	reg := registry.New()
	h := hub.NewHub(reg)
	repo := &memMessageRepo{}
	return &chatFixture{
		reg:  reg,
		hub:  h,
		repo: repo,
		svc:  NewChatService(h, reg, repo, nil, 0, 50),
	}
}

// connect creates a tracked client without starting pumps; events land in
// the Send channel for inspection.
func (f *chatFixture) connect(t *testing.T, id string) *hub.Client {
	t.Helper()
	c := hub.NewClient(id, f.hub, nil, config.WebSocketConfig{})
	f.hub.Add(c)
	return c
}

func drain(t *testing.T, c *hub.Client) []domain.Envelope {
	t.Helper()
	var events []domain.Envelope
	for {
		select {
		case data := <-c.Send:
			var env domain.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			events = append(events, env)
		default:
			return events
		}
	}
}

func eventNames(events []domain.Envelope) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Event
	}
	return names
}

func decodeData(t *testing.T, env *domain.Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestJoinEmptyUsername(t *testing.T) {
	f := newChatFixture(t)
	c := f.connect(t, "conn-1")

	require.NoError(t, f.svc.HandleJoin(context.Background(), c, "   "))

	events := drain(t, c)
	require.Equal(t, []string{domain.EventError}, eventNames(events))
	assert.Empty(t, f.reg.OnlineUsers())
}

func TestJoinReplaysHistoryThenAnnounces(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.repo.Create(ctx, "carol", "earlier message")
	require.NoError(t, err)

	c := f.connect(t, "conn-1")
	require.NoError(t, f.svc.HandleJoin(ctx, c, "alice"))

	events := drain(t, c)
	// History is unicast first; the join announcement reaches the joiner
	// too because registration precedes the broadcast.
	require.Equal(t, []string{domain.EventMessageHistory, domain.EventUserJoined}, eventNames(events))

	var history domain.MessageHistoryPayload
	decodeData(t, &events[0], &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "carol", history.Messages[0].Username)

	var joined domain.PresencePayload
	decodeData(t, &events[1], &joined)
	assert.Equal(t, "alice", joined.Username)
	assert.Contains(t, joined.Message, "alice")

	assert.Equal(t, []string{"alice"}, f.reg.OnlineUsers())
}

func TestJoinTwiceRejected(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c := f.connect(t, "conn-1")

	require.NoError(t, f.svc.HandleJoin(ctx, c, "alice"))
	drain(t, c)

	require.NoError(t, f.svc.HandleJoin(ctx, c, "alice"))

	events := drain(t, c)
	require.Equal(t, []string{domain.EventError}, eventNames(events))

	// Prior binding is intact.
	username, ok := f.reg.Lookup(c.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", username)
}

func TestSendBeforeJoinRejected(t *testing.T) {
	f := newChatFixture(t)
	c := f.connect(t, "conn-1")

	require.NoError(t, f.svc.HandleSendMessage(context.Background(), c, "hi"))

	events := drain(t, c)
	require.Equal(t, []string{domain.EventError}, eventNames(events))

	var p domain.ErrorPayload
	decodeData(t, &events[0], &p)
	assert.Equal(t, "You must join the chat first", p.Message)
	assert.Zero(t, f.repo.count())
}

func TestSendEmptyContentRejected(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c := f.connect(t, "conn-1")

	require.NoError(t, f.svc.HandleJoin(ctx, c, "alice"))
	drain(t, c)

	require.NoError(t, f.svc.HandleSendMessage(ctx, c, "  \t "))

	events := drain(t, c)
	require.Equal(t, []string{domain.EventError}, eventNames(events))
	assert.Zero(t, f.repo.count())
}

func TestSendPersistsThenBroadcastsToAll(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	alice := f.connect(t, "conn-a")
	bob := f.connect(t, "conn-b")
	require.NoError(t, f.svc.HandleJoin(ctx, alice, "alice"))
	require.NoError(t, f.svc.HandleJoin(ctx, bob, "bob"))
	drain(t, alice)
	drain(t, bob)

	require.NoError(t, f.svc.HandleSendMessage(ctx, bob, "hi"))

	require.Equal(t, 1, f.repo.count())

	// Both receive the broadcast, sender included.
	for _, c := range []*hub.Client{alice, bob} {
		events := drain(t, c)
		require.Equal(t, []string{domain.EventNewMessage}, eventNames(events), "client %s", c.ID)

		var msg domain.MessagePayload
		decodeData(t, &events[0], &msg)
		assert.Equal(t, uint(1), msg.ID)
		assert.Equal(t, "bob", msg.Username)
		assert.Equal(t, "hi", msg.Content)
		assert.NotEmpty(t, msg.Timestamp)
	}
}

func TestPersistFailureSuppressesBroadcast(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	alice := f.connect(t, "conn-a")
	bob := f.connect(t, "conn-b")
	require.NoError(t, f.svc.HandleJoin(ctx, alice, "alice"))
	require.NoError(t, f.svc.HandleJoin(ctx, bob, "bob"))
	drain(t, alice)
	drain(t, bob)

	f.repo.failCreate = true
	require.NoError(t, f.svc.HandleSendMessage(ctx, bob, "hi"))

	// Only the sender hears about the failure.
	events := drain(t, bob)
	require.Equal(t, []string{domain.EventError}, eventNames(events))
	assert.Empty(t, drain(t, alice))
	assert.Zero(t, f.repo.count())
}

func TestOnlineUsersQueryFromAnonymous(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	joined := f.connect(t, "conn-1")
	require.NoError(t, f.svc.HandleJoin(ctx, joined, "alice"))
	drain(t, joined)

	anonymous := f.connect(t, "conn-2")
	require.NoError(t, f.svc.HandleOnlineUsers(ctx, anonymous))

	events := drain(t, anonymous)
	require.Equal(t, []string{domain.EventOnlineUsers}, eventNames(events))

	var p domain.OnlineUsersPayload
	decodeData(t, &events[0], &p)
	assert.Equal(t, []string{"alice"}, p.Users)
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	alice := f.connect(t, "conn-a")
	bob := f.connect(t, "conn-b")
	require.NoError(t, f.svc.HandleJoin(ctx, alice, "alice"))
	require.NoError(t, f.svc.HandleJoin(ctx, bob, "bob"))
	drain(t, alice)
	drain(t, bob)

	require.NoError(t, f.svc.HandleDisconnect(ctx, bob))
	f.hub.Remove(bob)

	events := drain(t, alice)
	require.Equal(t, []string{domain.EventUserLeft}, eventNames(events))

	var p domain.PresencePayload
	decodeData(t, &events[0], &p)
	assert.Equal(t, "bob", p.Username)

	assert.Equal(t, []string{"alice"}, f.reg.OnlineUsers())
}

func TestDisconnectBeforeJoinIsSilent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	joined := f.connect(t, "conn-1")
	require.NoError(t, f.svc.HandleJoin(ctx, joined, "alice"))
	drain(t, joined)

	anonymous := f.connect(t, "conn-2")
	require.NoError(t, f.svc.HandleDisconnect(ctx, anonymous))

	assert.Empty(t, drain(t, joined))
}

func TestDuplicateUsernameAcrossConnections(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first := f.connect(t, "conn-1")
	second := f.connect(t, "conn-2")
	require.NoError(t, f.svc.HandleJoin(ctx, first, "alice"))
	require.NoError(t, f.svc.HandleJoin(ctx, second, "alice"))

	assert.Equal(t, []string{"alice"}, f.reg.OnlineUsers())

	// Both connections still receive broadcasts independently.
	drain(t, first)
	drain(t, second)
	require.NoError(t, f.svc.HandleSendMessage(ctx, first, "hello"))
	assert.Len(t, drain(t, first), 1)
	assert.Len(t, drain(t, second), 1)
}

func TestFullScenario(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.repo.Create(ctx, "carol", "old news")
	require.NoError(t, err)

	alice := f.connect(t, "conn-a")
	require.NoError(t, f.svc.HandleJoin(ctx, alice, "alice"))

	events := drain(t, alice)
	require.Equal(t, []string{domain.EventMessageHistory, domain.EventUserJoined}, eventNames(events))

	bob := f.connect(t, "conn-b")
	require.NoError(t, f.svc.HandleJoin(ctx, bob, "bob"))

	// Both alice and bob observe bob's join.
	aliceEvents := drain(t, alice)
	require.Equal(t, []string{domain.EventUserJoined}, eventNames(aliceEvents))
	var joined domain.PresencePayload
	decodeData(t, &aliceEvents[0], &joined)
	assert.Equal(t, "bob", joined.Username)
	require.Equal(t, []string{domain.EventMessageHistory, domain.EventUserJoined}, eventNames(drain(t, bob)))

	require.NoError(t, f.svc.HandleSendMessage(ctx, bob, "hi"))
	for _, c := range []*hub.Client{alice, bob} {
		events := drain(t, c)
		require.Equal(t, []string{domain.EventNewMessage}, eventNames(events))
		var msg domain.MessagePayload
		decodeData(t, &events[0], &msg)
		assert.Equal(t, "bob", msg.Username)
		assert.Equal(t, "hi", msg.Content)
	}

	require.NoError(t, f.svc.HandleDisconnect(ctx, bob))
	f.hub.Remove(bob)

	events = drain(t, alice)
	require.Equal(t, []string{domain.EventUserLeft}, eventNames(events))
	assert.Equal(t, []string{"alice"}, f.reg.OnlineUsers())
}

// memHistoryCache records cache traffic for the history path.
type memHistoryCache struct {
	mu          sync.Mutex
	stored      []domain.Message
	hasValue    bool
	invalidates int
}

func (c *memHistoryCache) GetRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasValue {
		return nil, cache.ErrCacheMiss
	}
	return c.stored, nil
}

func (c *memHistoryCache) SetRecent(ctx context.Context, limit int, messages []domain.Message, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = messages
	c.hasValue = true
	return nil
}

func (c *memHistoryCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = nil
	c.hasValue = false
	c.invalidates++
	return nil
}

func TestHistoryCacheHitSkipsStore(t *testing.T) {
	reg := registry.New()
	h := hub.NewHub(reg)
	repo := &memMessageRepo{}
	hc := &memHistoryCache{
		stored:   []domain.Message{{ID: 7, Username: "carol", Content: "cached", Timestamp: time.Now()}},
		hasValue: true,
	}
	svc := NewChatService(h, reg, repo, hc, time.Minute, 50)

	c := hub.NewClient("conn-1", h, nil, config.WebSocketConfig{})
	h.Add(c)

	require.NoError(t, svc.HandleJoin(context.Background(), c, "alice"))

	events := drain(t, c)
	require.Equal(t, []string{domain.EventMessageHistory, domain.EventUserJoined}, eventNames(events))

	var history domain.MessageHistoryPayload
	decodeData(t, &events[0], &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "cached", history.Messages[0].Content)
	assert.Zero(t, repo.recentHits)
}

func TestSendInvalidatesHistoryCache(t *testing.T) {
	reg := registry.New()
	h := hub.NewHub(reg)
	repo := &memMessageRepo{}
	hc := &memHistoryCache{}
	svc := NewChatService(h, reg, repo, hc, time.Minute, 50)

	c := hub.NewClient("conn-1", h, nil, config.WebSocketConfig{})
	h.Add(c)

	ctx := context.Background()
	require.NoError(t, svc.HandleJoin(ctx, c, "alice"))
	drain(t, c)

	require.NoError(t, svc.HandleSendMessage(ctx, c, "hi"))

	hc.mu.Lock()
	defer hc.mu.Unlock()
	assert.Equal(t, 1, hc.invalidates)
}
