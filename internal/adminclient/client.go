// Package adminclient talks to a running wabot over its HTTP API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/heartbeat"
)

type Client struct {
	baseURL string
	http    *http.Client
}

type ChatRequest struct {
	ChatID      string `json:"chat_id"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"text"`
	ChoiceID    string `json:"choice_id,omitempty"`
}

type Attachment struct {
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
	Caption  string `json:"caption"`
	Size     int    `json:"size"`
}

type ChatResponse struct {
	Handled    bool        `json:"handled"`
	Reply      string      `json:"reply"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type ContactCounts struct {
	Total   int `json:"total"`
	Blocked int `json:"blocked"`
	Groq    int `json:"groq"`
	Gastos  int `json:"gastos"`
}

type Info struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Environment   string         `json:"environment"`
	Timezone      string         `json:"timezone"`
	CommandPrefix string         `json:"command_prefix"`
	WhatsApp      bool           `json:"whatsapp"`
	Contacts      *ContactCounts `json:"contacts,omitempty"`
}

func New(cfg config.Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.AdminAPIURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("admin api url is required")
	}
	timeout := time.Duration(cfg.AdminHTTPTimeoutSec) * time.Second
	if timeout < time.Second {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	if timeout < time.Second {
		return c
	}
	clone := *c
	if c.http == nil {
		clone.http = &http.Client{Timeout: timeout}
		return &clone
	}
	httpClone := *c.http
	httpClone.Timeout = timeout
	clone.http = &httpClone
	return &clone
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/info", nil)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := c.doJSON(req, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (c *Client) Heartbeat(ctx context.Context) (heartbeat.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return heartbeat.Snapshot{}, err
	}
	var snapshot heartbeat.Snapshot
	if err := c.doJSON(req, &snapshot); err != nil {
		return heartbeat.Snapshot{}, err
	}
	return snapshot, nil
}

func (c *Client) Chat(ctx context.Context, input ChatRequest) (ChatResponse, error) {
	input.ChatID = strings.TrimSpace(input.ChatID)
	input.Text = strings.TrimSpace(input.Text)
	input.ChoiceID = strings.TrimSpace(input.ChoiceID)
	if input.ChatID == "" {
		return ChatResponse{}, fmt.Errorf("chat id is required")
	}
	if input.Text == "" && input.ChoiceID == "" {
		return ChatResponse{}, fmt.Errorf("text is required")
	}
	var response ChatResponse
	if err := c.postJSON(ctx, "/api/v1/chat", input, &response); err != nil {
		return ChatResponse{}, err
	}
	return response, nil
}

// Send pushes text to a chat through the running WhatsApp connection.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	chatID = strings.TrimSpace(chatID)
	text = strings.TrimSpace(text)
	if chatID == "" || text == "" {
		return fmt.Errorf("chat id and text are required")
	}
	return c.postJSON(ctx, "/api/v1/send", map[string]string{"chat_id": chatID, "text": text}, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var apiError struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiError)
		if strings.TrimSpace(apiError.Error) == "" {
			apiError.Error = res.Status
		}
		return errors.New(apiError.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
