package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// Credentials supplies the bearer token for every request and is told when the
// backend rejects it.
type Credentials interface {
	Token() (string, error)
	// HandleAuthFailure is told which token was rejected, "" if none was available.
	HandleAuthFailure(token string)
}

// Client is a wrapper around the marketplace chat REST API.
type Client struct {
	baseURL      string
	creds        Credentials
	httpClient   *http.Client
	uploadClient *http.Client
	log          zerolog.Logger
}

// NewClient creates a client for the API rooted at baseURL.
// Uploads are bounded by their context only; every other call by timeout.
func NewClient(baseURL string, creds Credentials, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		creds:        creds,
		httpClient:   &http.Client{Timeout: timeout},
		uploadClient: &http.Client{},
		log:          logger.With().Str("component", "backend").Logger(),
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	token, err := c.creds.Token()
	if err != nil {
		c.creds.HandleAuthFailure("")
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// execute runs req and turns every non-2xx outcome into an *Error.
// 401/403 from any endpoint triggers the credential's auth-failure handling.
func (c *Client) execute(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("request failed")
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.log.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("credential rejected")
		c.creds.HandleAuthFailure(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
		return nil, &Error{Kind: KindAuth, Status: resp.StatusCode, Message: serverMessage(respBody, resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Status: resp.StatusCode, Message: serverMessage(respBody, resp.StatusCode)}
	case resp.StatusCode >= 300:
		return nil, &Error{Kind: KindServer, Status: resp.StatusCode, Message: serverMessage(respBody, resp.StatusCode)}
	}
	return respBody, nil
}

// serverMessage extracts the backend's error message, or a generic one naming the status.
func serverMessage(body []byte, status int) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// doRequest sends body as JSON and decodes the response into out when out is not nil.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := c.newRequest(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.execute(c.httpClient, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindServer, Message: "malformed response", Err: err}
	}
	return nil
}

func chatPath(chatID string, rest ...string) string {
	p := "/chat/" + url.PathEscape(chatID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ListMessages returns the ordered message history of a chat.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.doRequest(ctx, http.MethodGet, chatPath(chatID, "messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateMessage persists a message and returns the server's copy.
func (c *Client) CreateMessage(ctx context.Context, chatID string, req models.SendMessageRequest) (models.Message, error) {
	var msg models.Message
	err := c.doRequest(ctx, http.MethodPost, chatPath(chatID, "messages"), req, &msg)
	return msg, err
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID string, messageID models.MessageID) error {
	return c.doRequest(ctx, http.MethodDelete, chatPath(chatID, "messages", url.PathEscape(string(messageID))), nil, nil)
}

// UploadAttachment streams att as multipart field "file" and returns the stored file URL.
func (c *Client) UploadAttachment(ctx context.Context, chatID string, att models.Attachment) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, att.Name))
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, att.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, chatPath(chatID, "upload"), pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	respBody, err := c.execute(c.uploadClient, req)
	pr.Close()
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Kind == KindServer && e.Message == fmt.Sprintf("request failed with status %d", e.Status) {
			e.Message = fmt.Sprintf("upload failed with status %d", e.Status)
		}
		return "", err
	}

	var out struct {
		FileURL string `json:"fileUrl"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil || out.FileURL == "" {
		return "", &Error{Kind: KindServer, Message: "upload response missing fileUrl", Err: err}
	}
	return out.FileURL, nil
}

// FindDirectChat returns the one-to-one chat with userID. A missing chat is a KindNotFound error.
func (c *Client) FindDirectChat(ctx context.Context, userID string) (*models.Chat, error) {
	var chat models.Chat
	if err := c.doRequest(ctx, http.MethodGet, "/chat/one-to-one/"+url.PathEscape(userID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateChat creates a chat and returns it.
func (c *Client) CreateChat(ctx context.Context, req models.CreateChatRequest) (*models.Chat, error) {
	var chat models.Chat
	if err := c.doRequest(ctx, http.MethodPost, "/chat", req, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChat fetches chat metadata.
func (c *Client) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	if err := c.doRequest(ctx, http.MethodGet, chatPath(chatID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns the conversations shown in the sidebar.
func (c *Client) ListChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	if err := c.doRequest(ctx, http.MethodGet, "/chat", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// ListUsers returns every user that can be added to a group.
func (c *Client) ListUsers(ctx context.Context) ([]models.ChatParticipant, error) {
	var users []models.ChatParticipant
	if err := c.doRequest(ctx, http.MethodGet, "/chat/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateGroupInfo renames a group.
func (c *Client) UpdateGroupInfo(ctx context.Context, chatID, groupName string) error {
	return c.doRequest(ctx, http.MethodPut, chatPath(chatID, "group-info"), models.UpdateGroupInfoRequest{GroupName: groupName}, nil)
}

// AddParticipants adds users to a group.
func (c *Client) AddParticipants(ctx context.Context, chatID string, userIDs []string) error {
	return c.doRequest(ctx, http.MethodPost, chatPath(chatID, "participants"), models.AddParticipantsRequest{UserIDs: userIDs}, nil)
}

// RemoveParticipant removes a user from a group.
func (c *Client) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	return c.doRequest(ctx, http.MethodDelete, chatPath(chatID, "participants", url.PathEscape(userID)), nil, nil)
}

// DissolveGroup deletes a group chat for every participant.
func (c *Client) DissolveGroup(ctx context.Context, chatID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/chat/system/"+url.PathEscape(chatID), nil, nil)
}

// GetAvatar returns the avatar URL of a user; empty when the user has none.
func (c *Client) GetAvatar(ctx context.Context, userID string) (string, error) {
	var out struct {
		AvatarURL string `json:"avatarUrl"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/chat/users/"+url.PathEscape(userID)+"/avatar", nil, &out); err != nil {
		return "", err
	}
	return out.AvatarURL, nil
}
