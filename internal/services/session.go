package services

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// DefaultOpeningMessage starts a direct chat created on first contact.
const DefaultOpeningMessage = "Hello! 👋"

// SessionState is the state of the active chat selection.
type SessionState string

const (
	StateNoChatSelected    SessionState = "NoChatSelected"
	StateLoadingHistory    SessionState = "LoadingHistory"
	StateReady             SessionState = "Ready"
	StateHistoryLoadFailed SessionState = "HistoryLoadFailed"
)

// ChatAPI is the part of the backend the session controller talks to.
type ChatAPI interface {
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	FindDirectChat(ctx context.Context, userID string) (*models.Chat, error)
	CreateChat(ctx context.Context, req models.CreateChatRequest) (*models.Chat, error)
}

// SessionSnapshot is the observable state of a ChatSession.
type SessionSnapshot struct {
	State    SessionState         `json:"state"`
	Chat     *models.Chat         `json:"chat,omitempty"`
	IsGroup  bool                 `json:"isGroup"`
	Error    string               `json:"error,omitempty"`
	Messages []models.MessageView `json:"messages"`
	Upload   *models.UploadTask   `json:"upload,omitempty"`
}

// ChatSessionDeps are the collaborators of a ChatSession.
type ChatSessionDeps struct {
	API            ChatAPI
	Store          *MessageStore
	Uploads        *UploadPipeline
	Typing         *TypingBroadcaster
	Sidebar        *SidebarRefresher
	Avatars        *AvatarCache
	OpeningMessage string
}

// ChatSession owns the active chat selection and wires the message store, the
// upload pipeline and the typing broadcaster to it.
type ChatSession struct {
	ChatSessionDeps
	log zerolog.Logger

	mu       sync.Mutex
	state    SessionState
	chat     *models.Chat
	gen      uint64
	loadErr  error
	onChange func(SessionSnapshot)
}

func NewChatSession(deps ChatSessionDeps, logger zerolog.Logger) *ChatSession {
	if deps.OpeningMessage == "" {
		deps.OpeningMessage = DefaultOpeningMessage
	}
	return &ChatSession{
		ChatSessionDeps: deps,
		log:             logger.With().Str("component", "chat_session").Logger(),
		state:           StateNoChatSelected,
	}
}

// OnChange registers a callback run after every state transition.
func (s *ChatSession) OnChange(fn func(SessionSnapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// begin starts a new selection and returns its generation. Results of earlier
// selections are ignored from now on.
func (s *ChatSession) begin(chat *models.Chat) uint64 {
	s.mu.Lock()
	prev := s.chat
	s.gen++
	gen := s.gen
	s.chat = chat
	s.state = StateLoadingHistory
	s.loadErr = nil
	chatID := ""
	if chat != nil {
		chatID = chat.ChatID
	}
	// Binding under s.mu keeps the store's chat in step with the generation.
	s.Store.Bind(chatID)
	s.mu.Unlock()

	if prev != nil {
		s.Typing.Stop(prev.ChatID)
	}
	s.Uploads.Discard()
	s.notify()
	return gen
}

func (s *ChatSession) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// fail moves a current selection to HistoryLoadFailed.
func (s *ChatSession) fail(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state = StateHistoryLoadFailed
	s.loadErr = err
	s.mu.Unlock()
	s.log.Warn().Err(err).Msg("chat selection failed")
	s.notify()
	return err
}

// SelectChat makes chatID the active chat and loads its metadata and history.
func (s *ChatSession) SelectChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrNoActiveChat
	}
	gen := s.begin(&models.Chat{ChatID: chatID})

	chat, err := s.API.GetChat(ctx, chatID)
	if err != nil {
		return s.fail(gen, err)
	}
	if !s.adopt(gen, chat) {
		return ErrSuperseded
	}
	return s.load(ctx, gen, chatID)
}

// SelectCounterpart opens the direct chat with userID, creating it with the
// opening message when none exists yet.
func (s *ChatSession) SelectCounterpart(ctx context.Context, userID string) error {
	if userID == "" {
		return backend.NewValidationError("user id is required")
	}
	gen := s.begin(nil)

	chat, err := s.API.FindDirectChat(ctx, userID)
	if backend.IsNotFound(err) {
		if !s.current(gen) {
			return ErrSuperseded
		}
		s.log.Info().Str("recipient_id", userID).Msg("no direct chat yet, creating one")
		chat, err = s.API.CreateChat(ctx, models.CreateChatRequest{
			ChatType:       models.ChatTypeIndividual,
			RecipientID:    userID,
			InitialMessage: s.OpeningMessage,
		})
	}
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.Store.Bind(chat.ChatID)
	s.mu.Unlock()
	if !s.adopt(gen, chat) {
		return ErrSuperseded
	}
	return s.load(ctx, gen, chat.ChatID)
}

// adopt installs fetched chat metadata if gen is still current. Cached avatars
// are overlaid now; missing ones are fetched in the background.
func (s *ChatSession) adopt(gen uint64, chat *models.Chat) bool {
	chat = chat.Clone()
	chat.Participants = s.Avatars.Apply(chat.Participants)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.chat = chat
	s.mu.Unlock()
	s.notify()

	s.Avatars.WarmAsync(chat.Participants, func() { s.overlayAvatars(gen) })
	return true
}

// overlayAvatars re-applies cached avatars to the chat of selection gen.
func (s *ChatSession) overlayAvatars(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.chat == nil {
		s.mu.Unlock()
		return
	}
	chat := s.chat.Clone()
	chat.Participants = s.Avatars.Apply(chat.Participants)
	s.chat = chat
	s.mu.Unlock()
	s.notify()
}

func (s *ChatSession) load(ctx context.Context, gen uint64, chatID string) error {
	err := s.Store.LoadHistory(ctx, chatID)
	if errors.Is(err, ErrSuperseded) {
		return err
	}
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state = StateReady
	s.loadErr = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

// Refresh re-fetches the active chat's metadata and history. A chat that no
// longer exists clears the selection.
func (s *ChatSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen, chat := s.gen, s.chat
	s.mu.Unlock()
	if chat == nil {
		return ErrNoActiveChat
	}

	fresh, err := s.API.GetChat(ctx, chat.ChatID)
	if backend.IsNotFound(err) {
		if s.current(gen) {
			s.Clear()
		}
		return err
	}
	if err != nil {
		return err
	}
	if !s.adopt(gen, fresh) {
		return ErrSuperseded
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.state = StateLoadingHistory
	s.mu.Unlock()
	s.notify()
	return s.load(ctx, gen, fresh.ChatID)
}

// Clear drops the active chat.
func (s *ChatSession) Clear() {
	s.mu.Lock()
	prev := s.chat
	s.gen++
	s.chat = nil
	s.state = StateNoChatSelected
	s.loadErr = nil
	s.Store.Bind("")
	s.mu.Unlock()

	if prev != nil {
		s.Typing.Stop(prev.ChatID)
	}
	s.Uploads.Discard()
	s.notify()
}

// Active returns a copy of the active chat, or nil.
func (s *ChatSession) Active() *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.Clone()
}

// State returns the current state.
func (s *ChatSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsGroup reports whether the active chat is a group chat.
func (s *ChatSession) IsGroup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.IsGroup()
}

// Snapshot returns the observable state.
func (s *ChatSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	snap := SessionSnapshot{
		State:   s.state,
		Chat:    s.chat.Clone(),
		IsGroup: s.chat.IsGroup(),
	}
	if s.loadErr != nil {
		snap.Error = backend.UserMessage(s.loadErr)
	}
	s.mu.Unlock()

	snap.Messages = models.Views(s.Store.Snapshot())
	if task, ok := s.Uploads.Pending(); ok {
		snap.Upload = &task
	}
	return snap
}

func (s *ChatSession) activeChatID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil || s.state == StateNoChatSelected {
		return "", ErrNoActiveChat
	}
	return s.chat.ChatID, nil
}

// Send sends a text message to the active chat.
func (s *ChatSession) Send(ctx context.Context, content string) (models.Message, error) {
	if _, err := s.activeChatID(); err != nil {
		return models.Message{}, err
	}
	msg, err := s.Store.Send(ctx, content, "", models.MessageTypeText)
	if err != nil {
		return models.Message{}, err
	}
	s.Sidebar.RequestAfterSend()
	return msg, nil
}

// SendAttachment uploads att and then sends it with content as caption. If the
// upload fails nothing is added to the store.
func (s *ChatSession) SendAttachment(ctx context.Context, content string, att models.Attachment) (models.Message, error) {
	chatID, err := s.activeChatID()
	if err != nil {
		return models.Message{}, err
	}
	task, err := s.Uploads.Select(chatID, att)
	if err != nil {
		return models.Message{}, err
	}
	res, err := s.Uploads.Upload(ctx, task.ID)
	if err != nil {
		return models.Message{}, err
	}
	if s.Store.ChatID() != chatID {
		return models.Message{}, ErrSuperseded
	}
	msg, err := s.Store.Send(ctx, content, res.FileURL, res.Category)
	if err != nil {
		return models.Message{}, err
	}
	s.Sidebar.RequestAfterSend()
	return msg, nil
}

// DeleteMessage deletes a message of the active chat.
func (s *ChatSession) DeleteMessage(ctx context.Context, id models.MessageID) error {
	if _, err := s.activeChatID(); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

// SetTyping forwards local typing intent for the active chat.
func (s *ChatSession) SetTyping(isTyping bool) error {
	chatID, err := s.activeChatID()
	if err != nil {
		return err
	}
	s.Typing.SetTyping(chatID, isTyping)
	return nil
}

func (s *ChatSession) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(s.Snapshot())
	}
}
