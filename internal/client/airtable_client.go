package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/clipforge/api/internal/config"
	"github.com/clipforge/api/internal/model"
)

// RecordStore defines the interface for the external tabular record store.
// Status propagation is best-effort from the pipeline's perspective.
type RecordStore interface {
	GetRecord(ctx context.Context, recordID string) (*Record, error)
	UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) error
	SetStatus(ctx context.Context, recordID string, status model.RecordStatus, errMsg, videoURL string) error
}

// Record represents one row in the record store
type Record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// AirtableClient implements RecordStore for the Airtable REST API
type AirtableClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	baseID     string
	table      string
	themeField string
}

// NewAirtableClient creates a new Airtable client
func NewAirtableClient(cfg *config.AirtableConfig) *AirtableClient {
	return &AirtableClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		baseID:     cfg.BaseID,
		table:      cfg.Table,
		themeField: cfg.ThemeField,
	}
}

func (c *AirtableClient) recordURL(recordID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(c.table), url.PathEscape(recordID))
}

// GetRecord reads one record by id
func (c *AirtableClient) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(recordID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var record Record
	if err := c.doRequest(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Theme extracts the theme field from a record.
func (c *AirtableClient) Theme(record *Record) (string, error) {
	raw, ok := record.Fields[c.themeField]
	if !ok {
		return "", fmt.Errorf("record %s has no %q field", record.ID, c.themeField)
	}
	theme, ok := raw.(string)
	if !ok || theme == "" {
		return "", fmt.Errorf("record %s has an empty %q field", record.ID, c.themeField)
	}
	return theme, nil
}

// UpdateRecord merges the given fields into a record
func (c *AirtableClient) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"fields": fields})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.recordURL(recordID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	var record Record
	return c.doRequest(req, &record)
}

// SetStatus writes a terminal status indicator back to the record. Empty
// errMsg and videoURL fields are omitted.
func (c *AirtableClient) SetStatus(ctx context.Context, recordID string, status model.RecordStatus, errMsg, videoURL string) error {
	fields := map[string]interface{}{
		"Status": string(status),
	}
	if errMsg != "" {
		fields["Error"] = errMsg
	}
	if videoURL != "" {
		fields["Video URL"] = videoURL
	}
	return c.UpdateRecord(ctx, recordID, fields)
}

// doRequest executes an HTTP request and parses the response
func (c *AirtableClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("airtable API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AirtableClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseID != ""
}
