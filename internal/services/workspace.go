package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// BackendAPI is everything the workspace needs from the backend.
type BackendAPI interface {
	MessageAPI
	ChatAPI
	GroupAPI
	AvatarFetcher
	ListChats(ctx context.Context) ([]models.Chat, error)
}

// WorkspaceConfig holds the tunables of a Workspace.
type WorkspaceConfig struct {
	UserID                      string
	Username                    string
	FilesEndpoint               string
	MaxFileURLLen               int
	UploadMaxBytes              int64
	UploadTimeout               time.Duration
	TypingQuietWindow           time.Duration
	SidebarThrottle             time.Duration
	SidebarDelay                time.Duration
	OpeningMessage              string
	RemoveParticipantClosesView bool
}

// Workspace wires the chat components of one signed-in user together and
// forwards their changes to the event hub.
type Workspace struct {
	Credentials *CredentialAccessor
	Avatars     *AvatarCache
	Store       *MessageStore
	Uploads     *UploadPipeline
	Typing      *TypingBroadcaster
	Sidebar     *SidebarRefresher
	Session     *ChatSession
	Groups      *GroupManager
	Events      *EventHub

	api           BackendAPI
	conversations *ConversationCache
	userID        string
	log           zerolog.Logger

	mu    sync.Mutex
	chats []models.Chat
}

// NewWorkspace builds every component. uploader receives attachments, presence
// carries typing events, and conversations may be nil.
func NewWorkspace(
	cfg WorkspaceConfig,
	api BackendAPI,
	creds *CredentialAccessor,
	uploader AttachmentUploader,
	presence PresencePublisher,
	conversations *ConversationCache,
	logger zerolog.Logger,
) *Workspace {
	w := &Workspace{
		Credentials:   creds,
		Events:        NewEventHub(logger),
		api:           api,
		conversations: conversations,
		userID:        cfg.UserID,
		log:           logger.With().Str("component", "workspace").Logger(),
	}

	w.Avatars = NewAvatarCache(api)
	w.Store = NewMessageStore(api, MessageStoreConfig{
		UserID:        cfg.UserID,
		FilesEndpoint: cfg.FilesEndpoint,
		MaxFileURLLen: cfg.MaxFileURLLen,
	}, logger)
	w.Uploads = NewUploadPipeline(uploader, cfg.UploadMaxBytes, cfg.UploadTimeout, logger)
	w.Typing = NewTypingBroadcaster(presence, cfg.UserID, cfg.Username, cfg.TypingQuietWindow, logger)
	w.Sidebar = NewSidebarRefresher(w.refreshChats, cfg.SidebarThrottle, cfg.SidebarDelay, logger)
	w.Session = NewChatSession(ChatSessionDeps{
		API:            api,
		Store:          w.Store,
		Uploads:        w.Uploads,
		Typing:         w.Typing,
		Sidebar:        w.Sidebar,
		Avatars:        w.Avatars,
		OpeningMessage: cfg.OpeningMessage,
	}, logger)
	w.Groups = NewGroupManager(api, w.Session, cfg.RemoveParticipantClosesView, logger)

	// None of these callbacks may call back into the session: the store notifies
	// while the session lock is held.
	w.Store.OnChange(func(chatID string, entries []models.StoredMessage) {
		w.Events.Broadcast(models.Event{Type: models.EventMessages, ChatID: chatID, Payload: models.Views(entries)})
	})
	w.Session.OnChange(func(snap SessionSnapshot) {
		chatID := ""
		if snap.Chat != nil {
			chatID = snap.Chat.ChatID
		}
		w.Events.Broadcast(models.Event{Type: models.EventSession, ChatID: chatID, Payload: snap})
	})
	w.Uploads.OnProgress(func(task models.UploadTask) {
		w.Events.Broadcast(models.Event{Type: models.EventUploadProgress, ChatID: task.ChatID, Payload: task})
	})
	w.Groups.OnMutated(func() { w.Sidebar.RequestAfterSend() })
	creds.OnAuthFailure(w.authRequired)

	return w
}

// HandlePresence forwards a remote typing event to the UI. Our own events are skipped.
func (w *Workspace) HandlePresence(evt models.PresenceEvent) {
	if evt.UserID == "" || evt.UserID == w.userID {
		return
	}
	w.Events.Broadcast(models.Event{Type: models.EventTyping, ChatID: evt.ChatID, Payload: evt})
}

func (w *Workspace) authRequired() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.conversations.Invalidate(ctx)

	w.mu.Lock()
	w.chats = nil
	w.mu.Unlock()

	w.Events.Broadcast(models.Event{Type: models.EventAuthRequired})
}

// refreshChats re-fetches the conversation list and publishes it.
func (w *Workspace) refreshChats(ctx context.Context) error {
	chats, err := w.api.ListChats(ctx)
	if err != nil {
		return err
	}
	var participants []models.ChatParticipant
	for i := range chats {
		chats[i].Participants = w.Avatars.Apply(chats[i].Participants)
		participants = append(participants, chats[i].Participants...)
	}

	w.mu.Lock()
	w.chats = chats
	w.mu.Unlock()

	w.conversations.Save(ctx, chats)
	w.Events.Broadcast(models.Event{Type: models.EventSidebar, Payload: chats})
	w.Avatars.WarmAsync(participants, w.overlaySidebarAvatars)
	return nil
}

// overlaySidebarAvatars re-applies cached avatars to the conversation list and
// publishes it again. The list is copied since callers may hold the old one.
func (w *Workspace) overlaySidebarAvatars() {
	w.mu.Lock()
	if w.chats == nil {
		w.mu.Unlock()
		return
	}
	chats := make([]models.Chat, len(w.chats))
	for i, c := range w.chats {
		c.Participants = w.Avatars.Apply(c.Participants)
		chats[i] = c
	}
	w.chats = chats
	w.mu.Unlock()

	w.Events.Broadcast(models.Event{Type: models.EventSidebar, Payload: chats})
}

// Chats returns the conversation list, fetching it on first use. A cached list
// from Redis is served while a fresh one is fetched in the background.
func (w *Workspace) Chats(ctx context.Context) ([]models.Chat, error) {
	w.mu.Lock()
	chats := w.chats
	w.mu.Unlock()
	if chats != nil {
		return chats, nil
	}

	if cached, ok := w.conversations.Load(ctx); ok {
		w.Sidebar.RequestAfterSend()
		return cached, nil
	}

	if err := w.Sidebar.RefreshNow(ctx); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chats, nil
}

// RefreshChats re-fetches the conversation list now, bypassing the throttle.
func (w *Workspace) RefreshChats(ctx context.Context) ([]models.Chat, error) {
	if err := w.Sidebar.RefreshNow(ctx); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chats, nil
}

// Close stops timers and drops pending work.
func (w *Workspace) Close() {
	w.Typing.Close()
	w.Sidebar.Close()
	w.Uploads.Discard()
}
