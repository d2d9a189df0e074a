package store

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chadmichel/chadchat/internal/mocks"
	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/provider"
	"github.com/chadmichel/chadchat/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store  *Store
	api    *mocks.BackendMock
	client *mocks.ChatClientMock
	cache  *storage.Cache
	clock  *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cache, err := storage.Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	api := new(mocks.BackendMock)
	client := new(mocks.ChatClientMock)
	client.On("StopRealtimeNotifications").Return()

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := New(api, cache, func(endpoint, token string) provider.ChatClient { return client })
	s.now = clock.Now
	t.Cleanup(s.Close)

	return &fixture{store: s, api: api, client: client, cache: cache, clock: clock}
}

func (f *fixture) session() models.Session {
	return models.Session{
		Token:     "t1",
		Endpoint:  "https://chat.example",
		Email:     "a@x.com",
		UserID:    "u1",
		ExpiresOn: f.clock.Now().Add(time.Hour),
	}
}

func (f *fixture) login(t *testing.T) models.Session {
	t.Helper()
	session := f.session()
	f.api.On("Init", mock.Anything, "a@x.com").Return(session, nil).Once()
	f.client.On("StartRealtimeNotifications", mock.Anything).Return(nil).Once()
	require.NoError(t, f.store.Login(context.Background(), "a@x.com"))
	return session
}

func summary(id, topic string, lastMessageTime time.Time) models.Conversation {
	return models.Conversation{
		ConversationID:   id,
		Topic:            topic,
		CreatedByUserID:  "u1",
		CreatedByEmail:   "a@x.com",
		InvitedUserID:    "u2",
		InvitedUserEmail: "b@x.com",
		Members: []models.ChatUser{
			{UserID: "u1", Email: "a@x.com", DisplayName: "a@x.com"},
			{UserID: "u2", Email: "b@x.com", DisplayName: "b@x.com"},
		},
		LastMessageTime: lastMessageTime,
	}
}

func waitForDetailMessages(t *testing.T, s *Store, conversationID string, n int) models.ConversationDetail {
	t.Helper()
	var detail models.ConversationDetail
	require.Eventually(t, func() bool {
		d, ok := s.Detail(conversationID)
		if !ok || len(d.Messages) != n {
			return false
		}
		detail = d
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return detail
}

func TestLoginEstablishesSessionAndConnects(t *testing.T) {
	f := newFixture(t)
	want := f.login(t)

	assert.True(t, f.store.Ready())
	assert.Equal(t, StateConnected, f.store.ConnectionState())

	got := f.store.Session()
	require.NotNil(t, got)
	assert.Equal(t, want.Token, got.Token)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, "a@x.com", f.store.LastLoginEmail())

	var cached models.Session
	ok, err := f.cache.Get(storage.KeyChatService, &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Token, cached.Token)

	f.api.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

func TestLoginFailureKeepsPreviousSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.On("Init", mock.Anything, "b@x.com").Return(models.Session{}, assert.AnError).Once()
	require.Error(t, f.store.Login(context.Background(), "b@x.com"))

	got := f.store.Session()
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, f.store.Ready())
	f.api.AssertExpectations(t)
}

func TestReadyTracksExpiry(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.store.Ready())

	f.login(t)
	assert.True(t, f.store.Ready())

	f.clock.Advance(2 * time.Hour)
	assert.False(t, f.store.Ready())
	assert.ErrorIs(t, f.store.Refresh(context.Background()), ErrNotReady)
	assert.ErrorIs(t, f.store.SendMessage(context.Background(), "c1", "hi"), ErrNotReady)
}

func TestRestoreFromCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.Put(storage.KeyChatService, f.session()))
	f.client.On("StartRealtimeNotifications", mock.Anything).Return(nil).Once()

	require.True(t, f.store.RestoreFromCache(context.Background()))
	assert.True(t, f.store.Ready())
	assert.Equal(t, StateConnected, f.store.ConnectionState())
	f.client.AssertExpectations(t)
}

func TestRestoreFromCacheRejectsExpiredSession(t *testing.T) {
	f := newFixture(t)
	expired := f.session()
	expired.ExpiresOn = f.clock.Now().Add(-time.Minute)
	require.NoError(t, f.cache.Put(storage.KeyChatService, expired))

	assert.False(t, f.store.RestoreFromCache(context.Background()))
	assert.False(t, f.store.Ready())
	assert.Nil(t, f.store.Session())
}

func TestRefreshReplacesListWholesale(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base.Add(-time.Hour)),
		summary("c2", "two", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))

	list := f.store.Conversations()
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ConversationID)
	assert.Equal(t, "c1", list[1].ConversationID)

	// A thread absent from the next response disappears; stale entries never
	// linger after a refresh.
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c2", "two", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))

	list = f.store.Conversations()
	require.Len(t, list, 1)
	assert.Equal(t, "c2", list[0].ConversationID)
	f.api.AssertExpectations(t)
}

func TestRefreshCoalescesConcurrentCalls(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	release := make(chan struct{})
	f.api.On("GetConversations", mock.Anything).Run(func(mock.Arguments) {
		<-release
	}).Return([]models.Conversation{summary("c1", "one", f.clock.Now())}, nil).Once()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.store.Refresh(context.Background())
		}(i)
		time.Sleep(50 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	f.api.AssertNumberOfCalls(t, "GetConversations", 1)
}

func TestEnsureLoadedBuildsDetail(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "a@x.com and b@x.com", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))

	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{
		{ID: "m1", Content: "first", SenderID: "u1", SenderDisplayName: "a@x.com", CreatedOn: base.Add(-2 * time.Minute), SequenceID: "1"},
		{ID: "sys", Content: "", SenderID: "", SequenceID: "2"},
		{ID: "m3", Content: "third", SenderID: "u2", SenderDisplayName: "b@x.com", CreatedOn: base, SequenceID: "3"},
		{ID: "m2", Content: "second", SenderID: "u2", SenderDisplayName: "b@x.com", CreatedOn: base.Add(-time.Minute), SequenceID: "2"},
	}, nil).Once()

	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))

	detail, ok := f.store.Detail("c1")
	require.True(t, ok)
	assert.Equal(t, "b@x.com", detail.TheirDisplayName)
	require.Len(t, detail.Messages, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{
		detail.Messages[0].Text, detail.Messages[1].Text, detail.Messages[2].Text,
	})
	assert.False(t, detail.Messages[0].IsMine)
	assert.True(t, detail.Messages[2].IsMine)

	// Idempotent: a second call must not drain history again.
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))
	f.client.AssertNumberOfCalls(t, "ListMessages", 1)
}

func TestEnsureLoadedConcurrentCallsShareOneDrain(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))

	release := make(chan struct{})
	f.client.On("ListMessages", mock.Anything, "c1").Run(func(mock.Arguments) {
		<-release
	}).Return([]provider.HistoryMessage{
		{ID: "m1", Content: "hello", SenderID: "u2", SequenceID: "1"},
	}, nil).Once()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.store.EnsureLoaded(context.Background(), "c1")
		}(i)
		time.Sleep(50 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	f.client.AssertNumberOfCalls(t, "ListMessages", 1)

	detail, ok := f.store.Detail("c1")
	require.True(t, ok)
	assert.Len(t, detail.Messages, 1)
}

func TestEnsureLoadedRefreshesUnknownConversation(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c9", "late arrival", base),
	}, nil).Once()
	f.client.On("ListMessages", mock.Anything, "c9").Return([]provider.HistoryMessage{}, nil).Once()

	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c9"))
	_, ok := f.store.Detail("c9")
	assert.True(t, ok)
	f.api.AssertExpectations(t)
}

func TestEnsureLoadedUnknownAfterRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{}, nil).Once()

	err := f.store.EnsureLoaded(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownConversation)
}

func TestEnsureLoadedFailureLeavesNoPartialDetail(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))

	f.client.On("ListMessages", mock.Anything, "c1").Return(([]provider.HistoryMessage)(nil), assert.AnError).Once()
	require.Error(t, f.store.EnsureLoaded(context.Background(), "c1"))
	_, ok := f.store.Detail("c1")
	assert.False(t, ok)

	// The failed load must not poison later attempts.
	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{
		{ID: "m1", Content: "hello", SenderID: "u2", SequenceID: "1"},
	}, nil).Once()
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))
	detail, ok := f.store.Detail("c1")
	require.True(t, ok)
	assert.Len(t, detail.Messages, 1)
}

func TestRealtimeMessageAppendsToLoadedDetail(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))

	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{
		{ID: "m1", Content: "first", SenderID: "u1", SequenceID: "1"},
		{ID: "m2", Content: "second", SenderID: "u2", SequenceID: "2"},
	}, nil).Once()
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))

	arrival := base.Add(time.Minute)
	f.client.FireMessageReceived(provider.MessageReceivedEvent{
		ThreadID:          "c1",
		ID:                "m3",
		Content:           "live",
		SenderID:          "u2",
		SenderDisplayName: "b@x.com",
		CreatedOn:         arrival,
	})

	detail := waitForDetailMessages(t, f.store, "c1", 3)
	assert.Equal(t, "live", detail.Messages[0].Text)
	assert.Equal(t, realtimeSequenceID, detail.Messages[0].SequenceID)
	assert.Equal(t, int64(math.MaxInt64), detail.Messages[0].SequenceID)
	assert.False(t, detail.Messages[0].IsMine)
	assert.Equal(t, "second", detail.Messages[1].Text)

	list := f.store.Conversations()
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].LastMessage)
	assert.Equal(t, arrival, list[0].LastMessageTime)
	assert.Equal(t, "u2", list[0].LastMessageSenderUserID)
}

func TestRealtimeDuplicateMessageIgnored(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))
	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{}, nil).Once()
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))

	ev := provider.MessageReceivedEvent{ThreadID: "c1", ID: "m1", Content: "once", SenderID: "u2", CreatedOn: base}
	f.client.FireMessageReceived(ev)
	f.client.FireMessageReceived(ev)
	f.client.FireMessageReceived(provider.MessageReceivedEvent{ThreadID: "c1", ID: "m2", Content: "twice", SenderID: "u2", CreatedOn: base})

	detail := waitForDetailMessages(t, f.store, "c1", 2)
	assert.Equal(t, "twice", detail.Messages[0].Text)
	assert.Equal(t, "once", detail.Messages[1].Text)
}

func TestRealtimeMessageForUnloadedConversationIsDropped(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "loaded", base),
		summary("c2", "unloaded", base.Add(time.Minute)),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))
	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{}, nil).Once()
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))

	f.client.FireMessageReceived(provider.MessageReceivedEvent{ThreadID: "c2", ID: "mx", Content: "lost", SenderID: "u2", CreatedOn: base})
	// The queue is ordered, so once this sentinel event lands the dropped one
	// has been fully processed.
	f.client.FireMessageReceived(provider.MessageReceivedEvent{ThreadID: "c1", ID: "my", Content: "sentinel", SenderID: "u2", CreatedOn: base})
	waitForDetailMessages(t, f.store, "c1", 1)

	_, ok := f.store.Detail("c2")
	assert.False(t, ok)
	for _, conv := range f.store.Conversations() {
		if conv.ConversationID == "c2" {
			assert.Empty(t, conv.LastMessage)
		}
	}
}

func TestThreadCreatedEventRefreshesList(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c-new", "fresh", base),
	}, nil).Once()

	f.client.FireThreadCreated(provider.ThreadCreatedEvent{ThreadID: "c-new", CreatedBy: "u2", CreatedOn: base})

	require.Eventually(t, func() bool {
		list := f.store.Conversations()
		return len(list) == 1 && list[0].ConversationID == "c-new"
	}, 2*time.Second, 10*time.Millisecond)
	f.api.AssertExpectations(t)
}

func TestSendMessageLogsThenSendsAuthorizedText(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.On("LogMessage", mock.Anything, "c1", "damn right").Return("**** right", nil).Once()
	f.client.On("SendMessage", mock.Anything, "c1", "**** right").Return("m1", nil).Once()

	require.NoError(t, f.store.SendMessage(context.Background(), "c1", "damn right"))
	f.api.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

func TestSendMessageStopsWhenLogFails(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.On("LogMessage", mock.Anything, "c1", "hi").Return("", assert.AnError).Once()

	require.Error(t, f.store.SendMessage(context.Background(), "c1", "hi"))
	f.client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateConversationRefreshes(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.On("CreateConversation", mock.Anything, "b@x.com").Return(nil).Once()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "a@x.com and b@x.com", f.clock.Now()),
	}, nil).Once()

	require.NoError(t, f.store.CreateConversation(context.Background(), "b@x.com"))
	assert.Len(t, f.store.Conversations(), 1)
	f.api.AssertExpectations(t)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))
	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{}, nil).Once()
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))

	require.NoError(t, f.store.Logout())

	assert.Nil(t, f.store.Session())
	assert.False(t, f.store.Ready())
	assert.Empty(t, f.store.Conversations())
	_, ok := f.store.Detail("c1")
	assert.False(t, ok)
	assert.Equal(t, StateDisconnected, f.store.ConnectionState())
	f.client.AssertCalled(t, "StopRealtimeNotifications")

	var cached models.Session
	present, err := f.cache.Get(storage.KeyChatService, &cached)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestLoginAsDifferentUserClearsPreviousState(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	base := f.clock.Now()
	f.api.On("GetConversations", mock.Anything).Return([]models.Conversation{
		summary("c1", "one", base),
	}, nil).Once()
	require.NoError(t, f.store.Refresh(context.Background()))
	f.client.On("ListMessages", mock.Anything, "c1").Return([]provider.HistoryMessage{
		{ID: "m1", Content: "hello", SenderID: "u2", SequenceID: "1"},
	}, nil).Once()
	require.NoError(t, f.store.EnsureLoaded(context.Background(), "c1"))

	next := models.Session{
		Token:     "t2",
		Endpoint:  "https://chat.example",
		Email:     "b@y.com",
		UserID:    "u9",
		ExpiresOn: f.clock.Now().Add(time.Hour),
	}
	f.api.On("Init", mock.Anything, "b@y.com").Return(next, nil).Once()
	f.client.On("StartRealtimeNotifications", mock.Anything).Return(nil).Once()
	require.NoError(t, f.store.Login(context.Background(), "b@y.com"))

	assert.Empty(t, f.store.Conversations())
	_, ok := f.store.Detail("c1")
	assert.False(t, ok)
	got := f.store.Session()
	require.NotNil(t, got)
	assert.Equal(t, "u9", got.UserID)
	f.client.AssertCalled(t, "StopRealtimeNotifications")
}

func TestChangedSignalCoalesces(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	select {
	case <-f.store.Changed():
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after login")
	}
}
