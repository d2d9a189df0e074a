// Package store is the single point where the request/response flow (backend
// API calls) and the asynchronous realtime flow (provider push events)
// converge. It owns the session, the conversation list cache and the
// per-conversation detail cache; the UI only reads derived snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/chadmichel/chadchat/internal/backend"
	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/provider"
	"github.com/chadmichel/chadchat/internal/storage"
)

var (
	// ErrNotReady means there is no usable session or realtime client.
	ErrNotReady = errors.New("store is not ready")
	// ErrUnknownConversation means the id is absent from the list cache even
	// after a refresh.
	ErrUnknownConversation = errors.New("unknown conversation")
)

// realtimeSequenceID is the sentinel assigned to messages arriving over the
// realtime channel, which carry no sequence number. It sorts them ahead of
// all historically loaded messages; relative order between rapid realtime
// messages is client arrival order, an inherited limitation.
const realtimeSequenceID = int64(math.MaxInt64)

// ConnState tracks the realtime connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// event is the internal queue item the dispatcher consumes. Routing provider
// callbacks through one channel keeps their ordering relative to in-flight
// request/response operations deterministic and testable.
type event struct {
	message *provider.MessageReceivedEvent
	thread  *provider.ThreadCreatedEvent
}

type detailLoad struct {
	done chan struct{}
	err  error
}

type refreshOp struct {
	done chan struct{}
	err  error
}

// Store reconciles the token-based session lifecycle, the conversation list
// cache and the per-conversation detail cache against the backend API and
// the provider's push stream.
type Store struct {
	backend backend.API
	cache   *storage.Cache
	factory provider.Factory
	now     func() time.Time

	mu            sync.Mutex
	session       *models.Session
	client        provider.ChatClient
	connState     ConnState
	conversations map[string]*models.Conversation
	details       map[string]*models.ConversationDetail
	detailLoads   map[string]*detailLoad
	refresh       *refreshOp

	events    chan event
	changed   chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds a Store and starts its event dispatcher. Callers own the
// lifecycle: Close tears the dispatcher and any realtime connection down.
func New(api backend.API, cache *storage.Cache, factory provider.Factory) *Store {
	s := &Store{
		backend:       api,
		cache:         cache,
		factory:       factory,
		now:           time.Now,
		conversations: map[string]*models.Conversation{},
		details:       map[string]*models.ConversationDetail{},
		detailLoads:   map[string]*detailLoad{},
		events:        make(chan event, 64),
		changed:       make(chan struct{}, 1),
		quit:          make(chan struct{}),
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Session returns a copy of the current session, or nil before login.
func (s *Store) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	session := *s.session
	return &session
}

// Ready reports whether the session exists and has not expired. Evaluated
// against the clock on every call.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Usable(s.now())
}

// ConnectionState reports the realtime connection state.
func (s *Store) ConnectionState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Changed delivers a signal whenever a derived view may have changed.
// Signals are coalesced; consumers re-read the snapshots they care about.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// LastLoginEmail returns the email used for the previous login, if cached.
func (s *Store) LastLoginEmail() string {
	var email string
	if ok, err := s.cache.Get(storage.KeyEmail, &email); err != nil || !ok {
		return ""
	}
	return email
}

// Login exchanges email for a fresh session, persists it, and replaces the
// realtime connection. On failure the previous session is left untouched.
func (s *Store) Login(ctx context.Context, email string) error {
	session, err := s.backend.Init(ctx, email)
	if err != nil {
		log.Printf("store: login failed for %s: %v", email, err)
		return err
	}

	s.mu.Lock()
	old := s.client
	s.client = nil
	s.connState = StateDisconnected
	s.session = &session
	s.conversations = map[string]*models.Conversation{}
	s.details = map[string]*models.ConversationDetail{}
	s.mu.Unlock()

	// Never run two realtime connections for the same logical user.
	if old != nil {
		old.StopRealtimeNotifications()
	}

	if err := s.cache.Put(storage.KeyChatService, session); err != nil {
		log.Printf("store: persisting session failed: %v", err)
	}
	if err := s.cache.Put(storage.KeyEmail, email); err != nil {
		log.Printf("store: persisting email failed: %v", err)
	}
	s.notifyChanged()
	return s.connect(ctx)
}

// RestoreFromCache restores a persisted, unexpired session and connects
// without a network round trip. Returns false when nothing usable is cached.
func (s *Store) RestoreFromCache(ctx context.Context) bool {
	var session models.Session
	ok, err := s.cache.Get(storage.KeyChatService, &session)
	if err != nil {
		log.Printf("store: reading cached session failed: %v", err)
		return false
	}
	if !ok || !session.Usable(s.now()) {
		return false
	}

	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	s.notifyChanged()

	if err := s.connect(ctx); err != nil {
		log.Printf("store: connecting restored session failed: %v", err)
	}
	return true
}

// Logout clears the persisted session, tears down the realtime connection
// and empties both caches so nothing leaks into the next session.
func (s *Store) Logout() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.connState = StateDisconnected
	s.session = nil
	s.conversations = map[string]*models.Conversation{}
	s.details = map[string]*models.ConversationDetail{}
	s.mu.Unlock()

	if client != nil {
		client.StopRealtimeNotifications()
	}
	err := s.cache.Delete(storage.KeyChatService)
	s.notifyChanged()
	return err
}

// Refresh replaces the conversation list cache with the backend's current
// list. Concurrent calls share one in-flight fetch instead of issuing
// duplicate requests.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.session.Usable(s.now()) {
		s.mu.Unlock()
		return ErrNotReady
	}
	if op := s.refresh; op != nil {
		s.mu.Unlock()
		<-op.done
		return op.err
	}
	op := &refreshOp{done: make(chan struct{})}
	s.refresh = op
	s.mu.Unlock()

	conversations, err := s.backend.GetConversations(ctx)

	s.mu.Lock()
	s.refresh = nil
	if err == nil {
		fresh := make(map[string]*models.Conversation, len(conversations))
		for i := range conversations {
			conv := conversations[i]
			fresh[conv.ConversationID] = &conv
		}
		s.conversations = fresh
	}
	s.mu.Unlock()

	op.err = err
	close(op.done)
	if err != nil {
		log.Printf("store: refresh failed: %v", err)
		return err
	}
	s.notifyChanged()
	return nil
}

// Conversations returns the list view, sorted by last message time descending.
func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	list := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		list = append(list, *conv)
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].LastMessageTime.After(list[j].LastMessageTime)
	})
	return list
}

// Detail returns a snapshot of a loaded conversation detail.
func (s *Store) Detail(conversationID string) (models.ConversationDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.details[conversationID]
	if !ok {
		return models.ConversationDetail{}, false
	}
	snapshot := *detail
	snapshot.Messages = append([]models.Message(nil), detail.Messages...)
	snapshot.Members = append([]models.ChatUser(nil), detail.Members...)
	return snapshot, true
}

// EnsureLoaded builds the detail for a conversation by draining its full
// provider history. It is idempotent, serialized per conversation id, and
// atomic: a failed drain leaves no partial detail behind, so a later call
// can retry.
func (s *Store) EnsureLoaded(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	_, haveDetail := s.details[conversationID]
	load := s.detailLoads[conversationID]
	_, known := s.conversations[conversationID]
	s.mu.Unlock()

	if haveDetail {
		return nil
	}
	if load != nil {
		<-load.done
		return load.err
	}
	if !known {
		// Detail construction needs topic and participant data only the list
		// endpoint provides, so the list has to carry the thread first.
		if err := s.Refresh(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if _, ok := s.details[conversationID]; ok {
		s.mu.Unlock()
		return nil
	}
	if existing := s.detailLoads[conversationID]; existing != nil {
		s.mu.Unlock()
		<-existing.done
		return existing.err
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}
	session, client := s.session, s.client
	if !session.Usable(s.now()) || client == nil {
		s.mu.Unlock()
		return ErrNotReady
	}
	load = &detailLoad{done: make(chan struct{})}
	s.detailLoads[conversationID] = load
	summary := *conv
	userID := session.UserID
	s.mu.Unlock()

	load.err = s.buildDetail(ctx, client, summary, userID)

	s.mu.Lock()
	delete(s.detailLoads, conversationID)
	s.mu.Unlock()
	close(load.done)
	return load.err
}

func (s *Store) buildDetail(ctx context.Context, client provider.ChatClient, summary models.Conversation, userID string) error {
	history, err := client.ListMessages(ctx, summary.ConversationID)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", summary.ConversationID, err)
	}

	messages := make([]models.Message, 0, len(history))
	for _, entry := range history {
		// History also carries system entries (topic updates, member changes)
		// with no textual body; those never reach the view.
		if entry.Content == "" {
			continue
		}
		messages = append(messages, models.Message{
			ID:                entry.ID,
			Text:              entry.Content,
			IsMine:            entry.SenderID == userID,
			SenderDisplayName: entry.SenderDisplayName,
			CreatedOn:         entry.CreatedOn,
			SequenceID:        parseSequenceID(entry.SequenceID),
		})
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SequenceID > messages[j].SequenceID
	})

	detail := &models.ConversationDetail{
		ConversationID:   summary.ConversationID,
		Topic:            summary.Topic,
		Members:          append([]models.ChatUser(nil), summary.Members...),
		LastMessageTime:  summary.LastMessageTime,
		TheirDisplayName: summary.TheirDisplayName(userID),
		Messages:         messages,
	}

	s.mu.Lock()
	s.details[summary.ConversationID] = detail
	s.mu.Unlock()
	s.notifyChanged()
	return nil
}

// SendMessage logs the message with the backend first, then sends the text
// the backend authorized (it may have been moderated) through the provider.
// There is no optimistic local insert: the provider echoes the sender's own
// message back over the realtime channel and that echo is the only append
// path, at the cost of a little latency.
func (s *Store) SendMessage(ctx context.Context, conversationID, text string) error {
	s.mu.Lock()
	client := s.client
	usable := s.session.Usable(s.now())
	s.mu.Unlock()
	if !usable || client == nil {
		return ErrNotReady
	}

	authorized, err := s.backend.LogMessage(ctx, conversationID, text)
	if err != nil {
		return err
	}
	if _, err := client.SendMessage(ctx, conversationID, authorized); err != nil {
		return fmt.Errorf("send via provider: %w", err)
	}
	return nil
}

// CreateConversation asks the backend for a new thread with the invited user.
// The authoritative list entry arrives via the thread-created event; the
// extra refresh here just shortens the wait and coalesces with it.
func (s *Store) CreateConversation(ctx context.Context, inviteEmail string) error {
	if !s.Ready() {
		return ErrNotReady
	}
	if err := s.backend.CreateConversation(ctx, inviteEmail); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Close stops the realtime connection and the dispatcher. The persisted
// session survives for the next start.
func (s *Store) Close() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.connState = StateDisconnected
	s.mu.Unlock()
	if client != nil {
		client.StopRealtimeNotifications()
	}
	s.closeOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}

// connect replaces the realtime connection for the current session. Callers
// must have stopped any previous client already.
func (s *Store) connect(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	if !session.Usable(s.now()) {
		s.mu.Unlock()
		return ErrNotReady
	}
	client := s.factory(session.Endpoint, session.Token)
	s.client = client
	s.connState = StateConnecting
	s.mu.Unlock()
	s.notifyChanged()

	client.OnMessageReceived(func(ev provider.MessageReceivedEvent) {
		s.enqueue(event{message: &ev})
	})
	client.OnThreadCreated(func(ev provider.ThreadCreatedEvent) {
		s.enqueue(event{thread: &ev})
	})

	if err := client.StartRealtimeNotifications(ctx); err != nil {
		s.mu.Lock()
		if s.client == client {
			s.client = nil
			s.connState = StateDisconnected
		}
		s.mu.Unlock()
		s.notifyChanged()
		return fmt.Errorf("start realtime notifications: %w", err)
	}

	s.mu.Lock()
	if s.client == client {
		s.connState = StateConnected
	}
	s.mu.Unlock()
	s.notifyChanged()
	return nil
}

func (s *Store) enqueue(ev event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("store: event queue full, dropping realtime event")
	}
}

func (s *Store) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			switch {
			case ev.message != nil:
				s.applyMessageReceived(*ev.message)
			case ev.thread != nil:
				s.applyThreadCreated(*ev.thread)
			}
		}
	}
}

// applyMessageReceived appends a realtime message to its loaded detail and
// updates the list summary. Events for threads whose detail has not been
// loaded are dropped: the payload carries no topic or member data to build
// one from, and the eventual EnsureLoaded drain will include the message.
func (s *Store) applyMessageReceived(ev provider.MessageReceivedEvent) {
	s.mu.Lock()
	session := s.session
	if session == nil {
		s.mu.Unlock()
		return
	}
	detail, ok := s.details[ev.ThreadID]
	if !ok {
		s.mu.Unlock()
		log.Printf("store: dropping realtime message for unloaded conversation %s", ev.ThreadID)
		return
	}
	for _, existing := range detail.Messages {
		if existing.ID == ev.ID {
			// At-least-once delivery; keep message ids unique per detail.
			s.mu.Unlock()
			log.Printf("store: duplicate realtime message %s ignored", ev.ID)
			return
		}
	}

	msg := models.Message{
		ID:                ev.ID,
		Text:              ev.Content,
		IsMine:            ev.SenderID == session.UserID,
		SenderDisplayName: ev.SenderDisplayName,
		CreatedOn:         ev.CreatedOn,
		SequenceID:        realtimeSequenceID,
	}
	detail.Messages = append([]models.Message{msg}, detail.Messages...)
	detail.LastMessageTime = ev.CreatedOn
	s.applyIncomingMessageSummaryLocked(ev.ThreadID, ev.CreatedOn, ev.Content, ev.SenderID)
	s.mu.Unlock()
	s.notifyChanged()
}

// applyIncomingMessageSummaryLocked updates the last-message fields of an
// existing list entry in place. An unknown id means the list has not caught
// up with a thread the realtime channel already knows about.
func (s *Store) applyIncomingMessageSummaryLocked(conversationID string, ts time.Time, text, senderID string) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		log.Printf("store: realtime message for conversation %s missing from list cache", conversationID)
		return
	}
	conv.LastMessage = text
	conv.LastMessageTime = ts
	conv.LastMessageSenderUserID = senderID
}

// applyThreadCreated triggers a full list refresh; there is no incremental
// add-conversation path because the event payload is too thin to build one.
func (s *Store) applyThreadCreated(ev provider.ThreadCreatedEvent) {
	if err := s.Refresh(context.Background()); err != nil {
		log.Printf("store: refresh after thread %s created failed: %v", ev.ThreadID, err)
	}
}

func (s *Store) notifyChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func parseSequenceID(raw string) int64 {
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("store: unparseable sequence id %q, treating as oldest", raw)
		return 0
	}
	return seq
}
