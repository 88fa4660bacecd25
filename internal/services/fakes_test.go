package services

import (
	"context"
	"strconv"
	"sync"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// fakeAPI implements BackendAPI with overridable behaviour and call counting.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	seq   int

	listMessages      func(ctx context.Context, chatID string) ([]models.Message, error)
	createMessage     func(ctx context.Context, chatID string, req models.SendMessageRequest) (models.Message, error)
	deleteMessage     func(ctx context.Context, chatID string, id models.MessageID) error
	getChat           func(ctx context.Context, chatID string) (*models.Chat, error)
	findDirectChat    func(ctx context.Context, userID string) (*models.Chat, error)
	createChat        func(ctx context.Context, req models.CreateChatRequest) (*models.Chat, error)
	listChats         func(ctx context.Context) ([]models.Chat, error)
	listUsers         func(ctx context.Context) ([]models.ChatParticipant, error)
	updateGroupInfo   func(ctx context.Context, chatID, name string) error
	addParticipants   func(ctx context.Context, chatID string, ids []string) error
	removeParticipant func(ctx context.Context, chatID, userID string) error
	dissolveGroup     func(ctx context.Context, chatID string) error
	getAvatar         func(ctx context.Context, userID string) (string, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) nextID() models.MessageID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return models.MessageID("srv-" + strconv.Itoa(f.seq))
}

func notFound() error {
	return &backend.Error{Kind: backend.KindNotFound, Status: 404, Message: "not found"}
}

func serverError(msg string) error {
	return &backend.Error{Kind: backend.KindServer, Status: 500, Message: msg}
}

func (f *fakeAPI) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	f.record("ListMessages")
	if f.listMessages != nil {
		return f.listMessages(ctx, chatID)
	}
	return nil, nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, chatID string, req models.SendMessageRequest) (models.Message, error) {
	f.record("CreateMessage")
	if f.createMessage != nil {
		return f.createMessage(ctx, chatID, req)
	}
	return models.Message{
		ID:          f.nextID(),
		ChatID:      chatID,
		SenderID:    "me",
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
	}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, chatID string, id models.MessageID) error {
	f.record("DeleteMessage")
	if f.deleteMessage != nil {
		return f.deleteMessage(ctx, chatID, id)
	}
	return nil
}

func (f *fakeAPI) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	f.record("GetChat")
	if f.getChat != nil {
		return f.getChat(ctx, chatID)
	}
	return &models.Chat{ChatID: chatID, ChatType: models.ChatTypeIndividual}, nil
}

func (f *fakeAPI) FindDirectChat(ctx context.Context, userID string) (*models.Chat, error) {
	f.record("FindDirectChat")
	if f.findDirectChat != nil {
		return f.findDirectChat(ctx, userID)
	}
	return nil, notFound()
}

func (f *fakeAPI) CreateChat(ctx context.Context, req models.CreateChatRequest) (*models.Chat, error) {
	f.record("CreateChat")
	if f.createChat != nil {
		return f.createChat(ctx, req)
	}
	return &models.Chat{ChatID: "direct-" + req.RecipientID, ChatType: req.ChatType}, nil
}

func (f *fakeAPI) ListChats(ctx context.Context) ([]models.Chat, error) {
	f.record("ListChats")
	if f.listChats != nil {
		return f.listChats(ctx)
	}
	return []models.Chat{}, nil
}

func (f *fakeAPI) ListUsers(ctx context.Context) ([]models.ChatParticipant, error) {
	f.record("ListUsers")
	if f.listUsers != nil {
		return f.listUsers(ctx)
	}
	return nil, nil
}

func (f *fakeAPI) UpdateGroupInfo(ctx context.Context, chatID, name string) error {
	f.record("UpdateGroupInfo")
	if f.updateGroupInfo != nil {
		return f.updateGroupInfo(ctx, chatID, name)
	}
	return nil
}

func (f *fakeAPI) AddParticipants(ctx context.Context, chatID string, ids []string) error {
	f.record("AddParticipants")
	if f.addParticipants != nil {
		return f.addParticipants(ctx, chatID, ids)
	}
	return nil
}

func (f *fakeAPI) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	f.record("RemoveParticipant")
	if f.removeParticipant != nil {
		return f.removeParticipant(ctx, chatID, userID)
	}
	return nil
}

func (f *fakeAPI) DissolveGroup(ctx context.Context, chatID string) error {
	f.record("DissolveGroup")
	if f.dissolveGroup != nil {
		return f.dissolveGroup(ctx, chatID)
	}
	return nil
}

func (f *fakeAPI) GetAvatar(ctx context.Context, userID string) (string, error) {
	f.record("GetAvatar")
	if f.getAvatar != nil {
		return f.getAvatar(ctx, userID)
	}
	return "", nil
}

// fakePublisher records published presence events.
type fakePublisher struct {
	mu     sync.Mutex
	events []models.PresenceEvent
	err    error
}

func (p *fakePublisher) PublishPresence(_ context.Context, event models.PresenceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) published() []models.PresenceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.PresenceEvent(nil), p.events...)
}

// fakeUploader lets tests control how an attachment upload behaves.
type fakeUploader struct {
	mu     sync.Mutex
	calls  int
	upload func(ctx context.Context, chatID string, att models.Attachment) (string, error)
}

func (u *fakeUploader) UploadAttachment(ctx context.Context, chatID string, att models.Attachment) (string, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	return u.upload(ctx, chatID, att)
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}
