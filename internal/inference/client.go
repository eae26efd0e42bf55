// Package inference talks to the model-serving backend. Agents use
// GenerateJSON for structured generation and Speech for audio synthesis.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storyforge-labs/storyforge-go/internal/platform/env"
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("inference api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("inference api error (status=%d): %s", e.StatusCode, body)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("INFERENCE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BaseURL: env.String("INFERENCE_BASE_URL", "http://localhost:8100"),
		Timeout: timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("INFERENCE_BASE_URL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("INFERENCE_TIMEOUT must be positive")
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GenerateRequest describes one structured generation call. Input carries
// the upstream material; ReworkNotes is empty on a first pass.
type GenerateRequest struct {
	Task        string         `json:"task"`
	Language    string         `json:"language"`
	Input       map[string]any `json:"input"`
	ReworkNotes string         `json:"rework_notes,omitempty"`
}

// GenerateJSON asks the backend for a JSON document and returns it decoded.
func (c *Client) GenerateJSON(ctx context.Context, req GenerateRequest) (map[string]any, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("inference client not initialized")
	}
	if strings.TrimSpace(req.Task) == "" {
		return nil, errors.New("task is required")
	}

	var out map[string]any
	if err := c.post(ctx, "/v1/generate", req, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("inference returned empty document")
	}
	return out, nil
}

type SpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice,omitempty"`
	Format   string `json:"format"`
}

// Speech synthesizes audio and returns the raw encoded bytes.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("inference client not initialized")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("text is required")
	}
	if strings.TrimSpace(req.Format) == "" {
		req.Format = "mp3"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if len(data) == 0 {
		return nil, errors.New("inference returned empty audio")
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode inference response: %w", err)
	}
	return nil
}
