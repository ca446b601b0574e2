// File: internal/repository/conversation/remote_repository.go
package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// RemoteConfig configures the HTTP conversation backend.
type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Validate checks the remote configuration.
func (c *RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("REMOTE_STORE_URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid REMOTE_STORE_URL: %w", err)
	}
	return nil
}

// StatusError is returned when the remote backend answers with an unexpected status.
type StatusError struct {
	Operation string
	Status    int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store %s: HTTP %d: %s", e.Operation, e.Status, e.Body)
}

type remoteConversationRepository struct {
	config *RemoteConfig
	client *http.Client
}

// NewRemoteRepository returns a ConversationStore talking to a remote conversation API.
func NewRemoteRepository(config *RemoteConfig) (ConversationStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &remoteConversationRepository{
		config: config,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (r *remoteConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.do(ctx, "get", http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &c); err != nil {
		return nil, err
	}
	domain.Normalize(&c)
	return &c, nil
}

func (r *remoteConversationRepository) List(ctx context.Context, filter ListFilter) ([]domain.ConversationSummary, error) {
	path := "/conversations"
	if filter.FolderID != nil {
		path += "?folder_id=" + url.QueryEscape(*filter.FolderID)
	}
	var out []domain.ConversationSummary
	if err := r.do(ctx, "list", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remoteConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return r.do(ctx, "create", http.MethodPost, "/conversations", c, nil)
}

func (r *remoteConversationRepository) Update(ctx context.Context, id string, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}
	return r.do(ctx, "update", http.MethodPatch, "/conversations/"+url.PathEscape(id), patchBody(patch), nil)
}

func (r *remoteConversationRepository) Delete(ctx context.Context, id string) error {
	return r.do(ctx, "delete", http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

// patchBody encodes only the fields the patch writes. Explicit nulls clear a field.
func patchBody(p Patch) map[string]any {
	body := make(map[string]any)
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.FolderID != nil {
		body["folder_id"] = *p.FolderID
	}
	if p.Messages != nil {
		body["messages"] = *p.Messages
	}
	if p.Settings != nil {
		body["settings"] = *p.Settings
	}
	if p.Replay != nil {
		body["replay"] = *p.Replay
	}
	return body
}

func (r *remoteConversationRepository) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote store %s: encode: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.config.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("remote store %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote store %s: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrConversationNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrConversationExists
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Operation: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote store %s: decode: %w", op, err)
	}
	return nil
}
