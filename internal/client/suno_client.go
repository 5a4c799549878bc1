package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tunegift/api/internal/config"
)

// ErrProviderAuth marks a 401/403 from the music provider. Fatal for the
// task, never retried.
var ErrProviderAuth = errors.New("authentication with music provider failed")

// Provider job sub-statuses reported by record-info.
const (
	StatusPending      = "PENDING"
	StatusProcessing   = "PROCESSING"
	StatusFirstSuccess = "FIRST_SUCCESS"
	StatusSuccess      = "SUCCESS"
)

// MusicProvider defines the interface for the async music generation service
type MusicProvider interface {
	Generate(ctx context.Context, req *GenerateSongRequest) (string, error)
	RecordInfo(ctx context.Context, providerJobID string) (*RecordInfo, error)
	IsConfigured() bool
}

// SunoClient implements MusicProvider for the Suno API
type SunoClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	callbackURL string
	model       string
	retryBase   time.Duration
}

// GenerateSongRequest is the submit body for one generation request.
type GenerateSongRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl,omitempty"`
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// RecordInfo is the status payload for one provider job.
type RecordInfo struct {
	TaskID   string          `json:"taskId"`
	Status   string          `json:"status"`
	Response *RecordResponse `json:"response"`
}

// RecordResponse holds the clips produced so far.
type RecordResponse struct {
	SunoData []SunoClip `json:"sunoData"`
}

// SunoClip is one rendition in the provider's own shape. The provider
// populates either the direct or the source variant of each URL.
type SunoClip struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	AudioURL       string `json:"audioUrl"`
	SourceAudioURL string `json:"sourceAudioUrl"`
	ImageURL       string `json:"imageUrl"`
	SourceImageURL string `json:"sourceImageUrl"`
}

// BestAudioURL returns whichever audio URL the provider filled in.
func (c *SunoClip) BestAudioURL() string {
	if c.AudioURL != "" {
		return c.AudioURL
	}
	return c.SourceAudioURL
}

// BestImageURL returns whichever cover image URL the provider filled in.
func (c *SunoClip) BestImageURL() string {
	if c.ImageURL != "" {
		return c.ImageURL
	}
	return c.SourceImageURL
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		model:       cfg.Model,
		retryBase:   time.Second,
	}
}

// Generate submits one generation request and returns the provider's job id.
// Retried up to 3 times on transient failures.
func (c *SunoClient) Generate(ctx context.Context, req *GenerateSongRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.CallBackURL == "" {
		req.CallBackURL = c.callbackURL
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	err := doWithRetry(ctx, "Suno API", 3, c.retryBase, func() error {
		return c.post(ctx, "/generate", req, &data)
	})
	if err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("suno generate: empty taskId in response")
	}
	return data.TaskID, nil
}

// RecordInfo fetches job status. Retried up to 2 times: the poll loop
// above it already retries on its own cadence.
func (c *SunoClient) RecordInfo(ctx context.Context, providerJobID string) (*RecordInfo, error) {
	endpoint := "/generate/record-info?taskId=" + providerJobID
	var info RecordInfo
	err := doWithRetry(ctx, "Suno API", 2, c.retryBase, func() error {
		return c.get(ctx, endpoint, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// post sends a POST request with JSON body
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
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
func (c *SunoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and unwraps the provider envelope.
func (c *SunoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Suno API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Suno API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w (status %d)", ErrProviderAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// The provider also signals errors inside a 200 envelope.
	switch env.Code {
	case 200:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (code %d: %s)", ErrProviderAuth, env.Code, env.Msg)
	default:
		return &apiError{StatusCode: env.Code, Body: env.Msg}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}
