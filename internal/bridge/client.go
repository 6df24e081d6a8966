package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API endpoints.
const (
	apiSynthesize = "/api/tts"
	apiSpeakers   = "/speakers"
	apiHealth     = "/api/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errTextCannotBeEmpty     = "text cannot be empty"
	errUnexpectedContentType = "unexpected content type: expected audio/wav, got %s"
	errReceivedEmptyAudio    = "received empty audio data"
	errFmtBridgeError        = "bridge error (%s): %s"
	errFmtBridgeNonOKStatus  = "bridge returned non-OK status: %s, body: %s"
)

// Client talks to a running bridge over HTTP. It is used by the CLI and by
// external integrations that prefer a typed API over raw requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// SynthesisRequest is the client-side synthesis payload.
type SynthesisRequest struct {
	Text          string  `json:"text"`
	CharacterName string  `json:"character_name"`
	Mode          string  `json:"mode,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
}

// Speaker is one entry of the speaker listing.
type Speaker struct {
	Name    string `json:"name"`
	VoiceID string `json:"voice_id"`
}

// Health is the bridge health report.
type Health struct {
	Status     string   `json:"status"`
	Model      string   `json:"model"`
	Characters []string `json:"characters"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a bridge client. baseURL includes protocol and port,
// e.g. "http://127.0.0.1:5010".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize posts a synthesis request and returns the WAV bytes.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New(errTextCannotBeEmpty)
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to bridge at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, errors.New(errReceivedEmptyAudio)
	}

	return audioData, nil
}

// Speakers fetches the speaker listing.
func (c *Client) Speakers(ctx context.Context) ([]Speaker, error) {
	var speakers []Speaker

	err := c.getJSON(ctx, apiSpeakers, &speakers)
	if err != nil {
		return nil, err
	}

	return speakers, nil
}

// Health fetches the bridge health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health

	err := c.getJSON(ctx, apiHealth, &health)
	if err != nil {
		return nil, err
	}

	return &health, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to bridge at %s failed: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// parseErrorResponse decodes the bridge's {error} payload, falling back to
// the raw body for non-JSON errors.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var payload errorResponse

	err := json.NewDecoder(resp.Body).Decode(&payload)
	if err == nil && payload.Error != "" {
		return fmt.Errorf(errFmtBridgeError, resp.Status, payload.Error)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(errFmtBridgeNonOKStatus, resp.Status, string(body))
}
