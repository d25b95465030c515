package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/clipforge/api/internal/config"
	"github.com/clipforge/api/internal/model"
)

// VideoGenerator defines the interface for the external render provider.
// Submission returns an opaque task id; completion arrives later on the
// callback address, never through this interface.
type VideoGenerator interface {
	SubmitRender(ctx context.Context, req *SubmitRenderRequest) (*SubmitRenderResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error)
}

// VideoClient implements VideoGenerator for the render provider API
type VideoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SubmitRenderRequest represents a render submission
type SubmitRenderRequest struct {
	Prompt      string            `json:"prompt"`
	AspectRatio model.AspectRatio `json:"aspect_ratio,omitempty"`
	CallbackURL string            `json:"callback_url"`
}

// SubmitRenderResponse represents the provider's acknowledgment
type SubmitRenderResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskStatusResponse represents an on-demand status probe result
type TaskStatusResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	ErrMsg   string `json:"err_msg,omitempty"`
}

// NewVideoClient creates a new render provider client
func NewVideoClient(cfg *config.VideoConfig) *VideoClient {
	return &VideoClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// SubmitRender submits one render task. The provider reports completion via
// the callback URL carried in the request.
func (c *VideoClient) SubmitRender(ctx context.Context, req *SubmitRenderRequest) (*SubmitRenderResponse, error) {
	var result SubmitRenderResponse
	if err := c.post(ctx, "/v1/video/generate", req, &result); err != nil {
		return nil, err
	}
	if result.TaskID == "" {
		return nil, fmt.Errorf("provider returned no task id")
	}
	return &result, nil
}

// GetTaskStatus probes a task directly. Used for manual inspection only; the
// pipeline itself is callback-driven.
func (c *VideoClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	var result TaskStatusResponse
	if err := c.get(ctx, "/v1/video/status/"+taskID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends a POST request with JSON body
func (c *VideoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *VideoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *VideoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Video API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Video API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Video API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Video API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("video API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *VideoClient) IsConfigured() bool {
	return c.apiKey != ""
}
